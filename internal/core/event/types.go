package event

// SceneLoaded fires once a scene has finished building its objects.
type SceneLoaded struct {
	Name string
}

// SceneUnloaded fires after the previous scene's objects were destroyed.
type SceneUnloaded struct {
	Name string
}

// GroupProgress reports a task group run advancing. Fraction is in (0, 1].
type GroupProgress struct {
	Group    string
	Fraction float64
}
