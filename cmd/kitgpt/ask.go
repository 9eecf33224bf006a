package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nachoal/kitgpt-go/chat"
	"github.com/nachoal/kitgpt-go/llm"
)

var (
	askSave     bool
	askNoStream bool

	// Query command for one-shot questions
	askCmd = &cobra.Command{
		Use:   "ask [message]",
		Short: "Ask one question without entering the TUI",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
)

func init() {
	askCmd.Flags().BoolVar(&askSave, "save", false, "save the exchange to history")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "print the whole answer at once")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	providerKey, modelID, ok := a.selection()
	if !ok {
		return fmt.Errorf("%w: run `kitgpt model set` or pass --provider and --model", chat.ErrNoModelSelected)
	}
	model, err := a.instantiate(providerKey, modelID, nil)
	if err != nil {
		return err
	}
	defer model.Close()

	prompt := strings.Join(args, " ")
	if askNoStream && !askSave {
		session := a.newSession(model)
		defer session.Close()
		reply, err := session.GenerateText(ctx, prompt)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	}

	out := &streamPrinter{w: os.Stdout}
	opts := []chat.Option{
		chat.WithObserver(out.observe),
		chat.WithSuggestionCount(0),
		chat.WithTitleThreshold(0),
	}
	if askSave {
		browser, err := a.history(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, chat.WithRepository(browser), chat.WithTitleThreshold(50))
	}
	session := a.newSession(model, opts...)

	go func() {
		<-ctx.Done()
		session.Abort()
	}()

	if err := session.Submit(prompt); err != nil {
		session.Close()
		return err
	}
	session.Wait()
	if err := session.Close(); err != nil {
		return err
	}
	fmt.Println()

	if err := out.err(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return errors.New("interrupted")
	}
	return nil
}

// streamPrinter writes assistant text to stdout as it streams in
type streamPrinter struct {
	w       io.Writer
	mu      sync.Mutex
	printed map[int]int
	last    int
	failure error
}

func (p *streamPrinter) observe(ev chat.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case chat.EventError:
		if p.failure == nil {
			p.failure = ev.Err
		}
	case chat.EventMessage:
		if ev.Message.Role != llm.RoleAssistant {
			return
		}
		if p.printed == nil {
			p.printed = make(map[int]int)
		}
		text := ev.Message.Text()
		done, seen := p.printed[ev.Index]
		if !seen && len(p.printed) > 0 && ev.Index != p.last {
			fmt.Fprint(p.w, "\n\n")
		}
		if len(text) > done {
			fmt.Fprint(p.w, text[done:])
			p.printed[ev.Index] = len(text)
		}
		p.last = ev.Index
	}
}

func (p *streamPrinter) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failure
}
