package orchestrator

import (
	"log/slog"
	"time"
)

// Operation is a handle for one in-flight unit of work.
type Operation struct {
	Name        string
	SceneNumber int
	Started     time.Time
}

// Observer receives start and end hooks for every generation call the orchestrator makes.
// Implementations must be safe for concurrent use.
type Observer interface {
	StartOperation(name string, sceneNumber int) Operation
	EndOperation(op Operation, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) StartOperation(name string, sceneNumber int) Operation {
	return Operation{Name: name, SceneNumber: sceneNumber, Started: time.Now()}
}

func (NopObserver) EndOperation(Operation, error) {}

// LogObserver logs each operation's duration at debug level and failures at warn.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) StartOperation(name string, sceneNumber int) Operation {
	return Operation{Name: name, SceneNumber: sceneNumber, Started: time.Now()}
}

func (o LogObserver) EndOperation(op Operation, err error) {
	elapsed := time.Since(op.Started)
	if err != nil {
		o.Logger.Warn("operation failed", "op", op.Name, "scene", op.SceneNumber, "duration", elapsed, "error", err)
		return
	}
	o.Logger.Debug("operation complete", "op", op.Name, "scene", op.SceneNumber, "duration", elapsed)
}

// Observers fans hooks out to several observers.
type Observers []Observer

func (os Observers) StartOperation(name string, sceneNumber int) Operation {
	op := Operation{Name: name, SceneNumber: sceneNumber, Started: time.Now()}
	for _, o := range os {
		o.StartOperation(name, sceneNumber)
	}
	return op
}

func (os Observers) EndOperation(op Operation, err error) {
	for _, o := range os {
		o.EndOperation(op, err)
	}
}
