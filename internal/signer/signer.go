// Package signer offloads message signing — CPU-bound ed25519 work — onto a
// small blocking-task pool so it never stalls the cooperative I/O scheduler
// the rest of the agent's tasks run on.
package signer

import (
	"context"
	"fmt"

	"github.com/loragw/gateway-agent/internal/xerr"
	"github.com/loragw/gateway-agent/key"
	"github.com/loragw/gateway-agent/proto"
)

// defaultWorkers matches the teacher's pattern of a small fixed pool rather
// than one goroutine per signing request.
const defaultWorkers = 4

type job struct {
	data   []byte
	result chan<- signResult
}

type signResult struct {
	sig []byte
	err error
}

// Signer dispatches signing jobs to a bounded worker pool.
type Signer struct {
	kp   *key.Keypair
	jobs chan job
	done chan struct{}
}

// New starts a Signer backed by workers goroutines (defaultWorkers if <= 0).
// Callers must call Close when the process shuts down.
func New(kp *key.Keypair, workers int) *Signer {
	if workers <= 0 {
		workers = defaultWorkers
	}
	s := &Signer{
		kp:   kp,
		jobs: make(chan job, workers*2),
		done: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

func (s *Signer) worker() {
	for {
		select {
		case j := <-s.jobs:
			j.result <- signResult{sig: s.kp.Sign(j.data)}
		case <-s.done:
			return
		}
	}
}

// Close stops all worker goroutines. Idempotent.
func (s *Signer) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Sign blanks msg's signature field(s), canonically encodes it, dispatches
// the signature computation to the worker pool, and writes the result back
// into msg. Returns xerr.ErrSigningFailed wrapping the cause on any failure,
// per the crypto error-taxonomy: callers drop the outgoing message.
func (s *Signer) Sign(ctx context.Context, msg proto.Signable) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", xerr.ErrSigningFailed, err)
	}
	select {
	case <-s.done:
		return fmt.Errorf("%w: signer closed", xerr.ErrSigningFailed)
	default:
	}

	data, err := msg.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("%w: encode: %v", xerr.ErrSigningFailed, err)
	}

	result := make(chan signResult, 1)
	select {
	case s.jobs <- job{data: data, result: result}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", xerr.ErrSigningFailed, ctx.Err())
	case <-s.done:
		return fmt.Errorf("%w: signer closed", xerr.ErrSigningFailed)
	}

	select {
	case r := <-result:
		if r.err != nil {
			return fmt.Errorf("%w: %v", xerr.ErrSigningFailed, r.err)
		}
		msg.SetSignature(r.sig)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", xerr.ErrSigningFailed, ctx.Err())
	case <-s.done:
		return fmt.Errorf("%w: signer closed", xerr.ErrSigningFailed)
	}
}
