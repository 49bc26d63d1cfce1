package design

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Provider performs one generateContent call.
type Provider interface {
	GenerateContent(ctx context.Context, call Call) (*Response, error)
}

// CredentialGate supplies the API key and receives re-prompt signals.
// RequestCredential must not block.
type CredentialGate interface {
	Credential() string
	RequestCredential()
}

// Observer receives attempt lifecycle events. Any field may be nil.
type Observer struct {
	Attempt func(op string, tier Tier, state AttemptState)
	Retry   func(op string, tier Tier, next AttemptState, delay time.Duration)
	Finish  func(op string, kind Kind, err error)
}

type Options struct {
	Provider    Provider
	Credentials CredentialGate
	Models      Models

	GeneratePolicy Policy
	EditPolicy     Policy

	Logger   *slog.Logger
	Observer Observer

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Service struct {
	provider       Provider
	creds          CredentialGate
	models         Models
	generatePolicy Policy
	editPolicy     Policy
	logger         *slog.Logger
	observer       Observer
	sleep          func(ctx context.Context, d time.Duration) error
}

const (
	opGenerate = "generate"
	opEdit     = "edit"
)

func New(opts Options) (*Service, error) {
	if opts.Provider == nil {
		return nil, errors.New("provider is nil")
	}
	if opts.Credentials == nil {
		return nil, errors.New("credential gate is nil")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	generatePolicy := opts.GeneratePolicy
	if generatePolicy == nil {
		generatePolicy = DefaultGeneratePolicy()
	}
	editPolicy := opts.EditPolicy
	if editPolicy == nil {
		editPolicy = DefaultEditPolicy()
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Service{
		provider:       opts.Provider,
		creds:          opts.Credentials,
		models:         opts.Models,
		generatePolicy: generatePolicy,
		editPolicy:     editPolicy,
		logger:         logger,
		observer:       opts.Observer,
		sleep:          sleep,
	}, nil
}

// WithCredentials returns a copy of s that reads its key from gate.
func (s *Service) WithCredentials(gate CredentialGate) *Service {
	clone := *s
	clone.creds = gate
	return &clone
}

// Generate renders one design for brief in the given style.
func (s *Service) Generate(ctx context.Context, brief Brief, style string) (Result, error) {
	if err := brief.validateContent(); err != nil {
		return Result{}, err
	}
	res, err := s.run(ctx, opGenerate, s.generatePolicy, func(tier Tier) Request {
		return BuildGenerateRequest(brief, style, tier)
	})
	if err != nil {
		return Result{}, err
	}
	res.Style = style
	return res, nil
}

// Edit applies instruction to a previously generated image.
func (s *Service) Edit(ctx context.Context, image Asset, instruction string, ratio AspectRatio) (Result, error) {
	if len(image.Data) == 0 {
		return Result{}, errors.New("image to edit is empty")
	}
	if strings.TrimSpace(instruction) == "" {
		return Result{}, errors.New("edit instruction is empty")
	}
	if !ratio.Valid() {
		return Result{}, fmt.Errorf("unknown aspect ratio %q", ratio)
	}
	return s.run(ctx, opEdit, s.editPolicy, func(tier Tier) Request {
		return BuildEditRequest(image, instruction, ratio, tier)
	})
}

// GenerateVariations generates one design per style, strictly one after
// another. fn sees each result before the next call starts; the first error
// from either side stops the run.
func (s *Service) GenerateVariations(ctx context.Context, brief Brief, styles []string, fn func(i int, res Result) error) error {
	if err := brief.Validate(); err != nil {
		return err
	}
	for i, style := range styles {
		res, err := s.Generate(ctx, brief, style)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(i, res); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) run(ctx context.Context, op string, policy Policy, build func(Tier) Request) (Result, error) {
	var state AttemptState

	for {
		key := strings.TrimSpace(s.creds.Credential())
		if key == "" {
			s.creds.RequestCredential()
			return Result{}, s.finish(op, newError(KindMissingCredential, nil))
		}

		tier := state.Tier()
		model := s.models.For(tier)
		if s.observer.Attempt != nil {
			s.observer.Attempt(op, tier, state)
		}

		resp, err := s.provider.GenerateContent(ctx, Call{
			APIKey:  key,
			Model:   model,
			Request: build(tier),
		})
		if err == nil {
			res, err := extractImage(resp)
			if err != nil {
				return Result{}, s.finish(op, err)
			}
			res.Model = model
			res.Tier = tier
			s.finish(op, nil)
			return res, nil
		}

		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return Result{}, s.finish(op, err)
		}

		c := Classify(err)
		decision := policy.Decide(state, c)

		switch decision.Action {
		case ActionFail:
			if decision.SignalCredential {
				s.logger.Warn("credential rejected, requesting a new one", "op", op, "model", model)
				s.creds.RequestCredential()
			}
			return Result{}, s.finish(op, newError(decision.Kind, err))
		case ActionRetry:
			next := decision.Next
			if next.UsingFallback && !state.UsingFallback {
				s.logger.Warn("primary model overloaded, switching to fallback",
					"op", op,
					"from", model,
					"to", s.models.For(next.Tier()),
				)
			} else {
				s.logger.Warn("model overloaded, retrying",
					"op", op,
					"model", model,
					"attempt", next.RetryCount,
					"delay_ms", decision.Delay.Milliseconds(),
					"err", c.Message,
				)
			}
			if s.observer.Retry != nil {
				s.observer.Retry(op, tier, next, decision.Delay)
			}
			if err := s.sleep(ctx, decision.Delay); err != nil {
				return Result{}, s.finish(op, err)
			}
			state = next
		default:
			return Result{}, s.finish(op, err)
		}
	}
}

func (s *Service) finish(op string, err error) error {
	if s.observer.Finish != nil {
		kind := Kind("")
		if err != nil {
			kind = KindOf(err)
		}
		s.observer.Finish(op, kind, err)
	}
	return err
}

func extractImage(resp *Response) (Result, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return Result{}, newError(KindEmptyResult, nil)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == FinishReasonSafety {
		return Result{}, newError(KindContentBlocked, nil)
	}

	for _, p := range candidate.Parts {
		if p.Inline == nil || len(p.Inline.Data) == 0 {
			continue
		}
		mime := p.Inline.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return Result{
			DataURL:  fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(p.Inline.Data)),
			MIMEType: mime,
		}, nil
	}

	return Result{}, newError(KindEmptyResult, nil)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
