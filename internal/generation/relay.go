package generation

import (
	"context"
	"errors"
	"log"
	"time"
)

// Relay forwards a prompt to a Generator with a fixed model, quality and
// timeout and extracts the first image URL.
type Relay struct {
	generator Generator
	model     string
	quality   string
	timeout   time.Duration
}

type RelayOptions struct {
	Model   string
	Quality string
	Timeout time.Duration
}

func NewRelay(generator Generator, opts RelayOptions) *Relay {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	return &Relay{
		generator: generator,
		model:     opts.Model,
		quality:   opts.Quality,
		timeout:   opts.Timeout,
	}
}

type outcome struct {
	resp *Response
	err  error
}

// Generate makes a single generation attempt. The call runs on its own
// goroutine; once the timeout fires the call is cancelled and its result is
// dropped. Every returned error is an *Error.
func (r *Relay) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	params := Params{Model: r.model, Prompt: prompt, Quality: r.quality}
	done := make(chan outcome, 1)
	go func() {
		resp, err := r.generator.Generate(ctx, params)
		done <- outcome{resp: resp, err: err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("generation timed out after %s category=%s", r.timeout, Category(err))
			return "", timeoutError(err)
		}
		log.Printf("generation abandoned category=%s", Category(err))
		return "", classify(err)
	case out = <-done:
	}

	if out.err != nil {
		log.Printf("generation failed category=%s err=%v", Category(out.err), out.err)
		return "", classify(out.err)
	}

	url, err := out.resp.FirstURL()
	if err != nil {
		log.Printf("generation response rejected: %v", err)
		return "", err
	}
	return url, nil
}
