package progress

import (
	"context"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Travbz/doc-smith/internal/domain"
)

// Program runs a Model and feeds it workflow events from a bus.
type Program struct {
	prog  *tea.Program
	unsub func()
	done  chan struct{}
	once  sync.Once
	err   error
}

// Start subscribes to workflow events on bus and starts rendering to out.
// Call Stop when the run has finished.
func Start(bus domain.EventBus, out io.Writer, title string, steps []string, onCancel func(), opts ...tea.ProgramOption) *Program {
	opts = append([]tea.ProgramOption{tea.WithOutput(out)}, opts...)
	p := &Program{
		prog: tea.NewProgram(NewModel(title, steps, onCancel), opts...),
		done: make(chan struct{}),
	}
	handler := func(_ context.Context, ev domain.Event) { p.prog.Send(EventMsg{Event: ev}) }
	p.unsub = func() {}
	if bus != nil {
		unsubs := []func(){
			bus.Subscribe(domain.EventWorkflowStarted, handler),
			bus.Subscribe(domain.EventWorkflowStep, handler),
			bus.Subscribe(domain.EventWorkflowCompleted, handler),
			bus.Subscribe(domain.EventWorkflowFailed, handler),
			bus.Subscribe(domain.EventWorkflowCancelled, handler),
		}
		p.unsub = func() {
			for _, u := range unsubs {
				u()
			}
		}
	}
	go func() {
		_, p.err = p.prog.Run()
		close(p.done)
	}()
	return p
}

// Stop ends the program if it is still running and waits for it to exit.
func (p *Program) Stop() error {
	p.once.Do(func() {
		p.unsub()
		p.prog.Send(DoneMsg{})
	})
	<-p.done
	return p.err
}
