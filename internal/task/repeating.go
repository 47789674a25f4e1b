package task

import (
	"sync"
	"time"
)

// RepeatingTask executes a task in a specific interval asynchronously.
// Start and Stop are safe for concurrent use.
type RepeatingTask struct {
	task     func()
	interval time.Duration

	mutex   sync.Mutex
	running bool
	stop    chan struct{}
}

// NewRepeating creates a new repeating asynchronous task
func NewRepeating(task func(), interval time.Duration) *RepeatingTask {
	return &RepeatingTask{
		task:     task,
		interval: interval,
	}
}

// Start starts the repeating task.
// If the task is already running, this is a no-op.
func (task *RepeatingTask) Start() {
	task.mutex.Lock()
	defer task.mutex.Unlock()
	if task.running {
		return
	}
	task.running = true
	task.stop = make(chan struct{})
	go func(stop chan struct{}) {
		for {
			select {
			case <-time.After(task.interval):
				task.task()
			case <-stop:
				return
			}
		}
	}(task.stop)
}

// Stop stops the repeating task.
// If the task is not running, this is a no-op.
// forceExec defines whether to execute the task one last time just before the task shuts down.
func (task *RepeatingTask) Stop(forceExec bool) {
	task.mutex.Lock()
	if !task.running {
		task.mutex.Unlock()
		return
	}
	close(task.stop)
	task.running = false
	task.mutex.Unlock()
	if forceExec {
		task.task()
	}
}
