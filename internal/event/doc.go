/*
Package event provides the pub/sub event system that reports invocation
progress.

Publishers are the orchestrator (run, plan and task events) and the template
source (registry reloads). Subscribers are the terminal printer, the run
store and the HTTP SSE stream.

# Delivery

In-process subscribers are called directly so they receive the typed Data
value:

	unsub := bus.Subscribe(event.TaskCompleted, func(e event.Event) {
		data := e.Data.(event.TaskData)
		fmt.Println("done", data.TaskID)
	})
	defer unsub()

Publish calls each subscriber on its own goroutine; PublishSync calls them
in order on the publishing goroutine.

Every event is also marshaled to JSON and published on the watermill
GoChannel under StreamTopic. Stream consumers read that form:

	ch, err := bus.Stream(ctx)
	for payload := range ch {
		w.Write(payload)
	}

# Event Types

  - run.started: an invocation began drafting
  - run.state: the run moved between states
  - plan.drafted: a draft (or redraft) is ready for review
  - task.started, task.completed, task.failed: apply progress
  - scope.denied: the guard refused a path
  - registry.reloaded: command templates were reread from disk
*/
package event
