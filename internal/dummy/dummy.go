package dummy

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stupiduntilnot/magnus/internal/conversation"
	modelpkg "github.com/stupiduntilnot/magnus/internal/model"
)

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		switch {
		case token == "ok" || token == "echo":
			actions = append(actions, action{kind: token})
		case strings.HasPrefix(token, "err:"):
			actions = append(actions, action{kind: "err", arg: strings.TrimPrefix(token, "err:")})
		case strings.HasPrefix(token, "sleep:"):
			actions = append(actions, action{kind: "sleep", arg: strings.TrimPrefix(token, "sleep:")})
		case strings.HasPrefix(token, "msg:"):
			actions = append(actions, action{kind: "msg", arg: strings.TrimPrefix(token, "msg:")})
		case strings.HasPrefix(token, "msgb64:"):
			actions = append(actions, action{kind: "msgb64", arg: strings.TrimPrefix(token, "msgb64:")})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

// next returns the following action; the last one repeats forever.
func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

// Provider is an offline completion gateway driven by a comma separated
// script: ok, echo, err:<class>, sleep:<ms>, msg:<text>, msgb64:<base64>.
type Provider struct {
	mu       sync.Mutex
	model    string
	script   *scriptRunner
	requests []modelpkg.Request
}

func NewProvider(model, script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{model: model, script: runner}, nil
}

// Requests returns every request received so far.
func (p *Provider) Requests() []modelpkg.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]modelpkg.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *Provider) ChatCompletion(ctx context.Context, req modelpkg.Request) (modelpkg.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req.Messages = append([]conversation.Message(nil), req.Messages...)
	p.requests = append(p.requests, req)

	a := p.script.next()
	switch a.kind {
	case "ok":
		return reply("dummy-ok"), nil
	case "echo":
		return reply(lastUserContent(req.Messages)), nil
	case "err":
		return modelpkg.CompletionResponse{}, scriptedError(emptyAs(a.arg, "provider_api"))
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return modelpkg.CompletionResponse{}, &modelpkg.GatewayError{Op: "dummy provider", Err: ctx.Err()}
			}
		}
		return reply("dummy-after-sleep"), nil
	case "msg":
		return reply(a.arg), nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return modelpkg.CompletionResponse{}, &modelpkg.GatewayError{
				Op:  "dummy provider",
				Err: fmt.Errorf("msgb64 decode failed: %w", err),
			}
		}
		return reply(string(raw)), nil
	default:
		return reply("dummy-ok"), nil
	}
}

// scriptedStatus maps an err:<class> action to the HTTP status that makes
// GatewayError.Class report the same class.
var scriptedStatus = map[string]int{
	"auth":                 401,
	"rate_limited":         429,
	"provider_unavailable": 503,
	"provider_rejected":    400,
}

func scriptedError(class string) *modelpkg.GatewayError {
	gwErr := &modelpkg.GatewayError{
		Op:         "dummy provider",
		StatusCode: scriptedStatus[class],
		Body:       "scripted failure class=" + class,
	}
	if class == "transport" {
		gwErr.Err = errors.New("scripted transport failure")
	}
	return gwErr
}

func reply(content string) modelpkg.CompletionResponse {
	return modelpkg.CompletionResponse{
		Content:      content,
		InputTokens:  1,
		OutputTokens: 1,
	}
}

func lastUserContent(messages []conversation.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
