// Package apptest holds hand-written fakes shared by application tests.
package apptest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/heroiclabs/nakama-common/runtime"

	"battlearena/internal/domain"
	"battlearena/internal/message"
	"battlearena/internal/ports"
)

// Logger implements runtime.Logger and records warnings and errors.
type Logger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

// NewLogger returns a recording logger.
func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) Debug(string, ...interface{}) {}
func (l *Logger) Info(string, ...interface{})  {}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, v...))
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, v...))
}

func (l *Logger) WithField(string, interface{}) runtime.Logger {
	return l
}

func (l *Logger) WithFields(map[string]interface{}) runtime.Logger {
	return l
}

func (l *Logger) Fields() map[string]interface{} {
	return nil
}

// Warnings returns the recorded warnings.
func (l *Logger) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

// Errors returns the recorded errors.
func (l *Logger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

// Provisioner is an in-memory MapProvisioner.
type Provisioner struct {
	Provisioned []ports.MapInstance
	Released    []ports.MapInstance
	// Fail makes every Provision call return an error.
	Fail bool
}

func (p *Provisioner) Provision(_ context.Context, _ *domain.Arena, m domain.MapDef, competitionID string) (ports.MapInstance, error) {
	if p.Fail {
		return ports.MapInstance{}, fmt.Errorf("provision %s refused", m.Name)
	}
	inst := ports.MapInstance{ID: competitionID, Map: m, MatchID: "match-" + competitionID}
	p.Provisioned = append(p.Provisioned, inst)
	return inst, nil
}

func (p *Provisioner) Release(_ context.Context, inst ports.MapInstance) error {
	p.Released = append(p.Released, inst)
	return nil
}

// Sent is one delivered message.
type Sent struct {
	UserID  string
	Message message.Message
}

// Messenger records every message it is asked to deliver.
type Messenger struct {
	mu   sync.Mutex
	Sent []Sent
}

func (m *Messenger) Send(_ context.Context, userID string, msg message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, Sent{UserID: userID, Message: msg})
	return nil
}

// IDs returns the message ids delivered to userID in order.
func (m *Messenger) IDs(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.Sent {
		if s.UserID == userID {
			out = append(out, s.Message.ID)
		}
	}
	return out
}

// Count returns how many times id was delivered to anyone.
func (m *Messenger) Count(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.Sent {
		if s.Message.ID == id {
			n++
		}
	}
	return n
}

// Directory resolves names from a fixed map, falling back to upper-cased ids.
type Directory struct {
	Names map[string]string
}

func (d *Directory) DisplayNames(_ context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if name, ok := d.Names[id]; ok {
			out[id] = name
			continue
		}
		out[id] = strings.ToUpper(id)
	}
	return out, nil
}

// Commands records executed commands.
type Commands struct {
	Ran []string
}

func (c *Commands) Run(_ context.Context, command string) error {
	c.Ran = append(c.Ran, command)
	return nil
}

// Archive keeps records in memory.
type Archive struct {
	Records []ports.TournamentRecord
}

func (a *Archive) Save(_ context.Context, r ports.TournamentRecord) error {
	a.Records = append(a.Records, r)
	return nil
}

func (a *Archive) Recent(_ context.Context, arena string, limit int) ([]ports.TournamentRecord, error) {
	var out []ports.TournamentRecord
	for i := len(a.Records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if arena == "" || a.Records[i].Arena == arena {
			out = append(out, a.Records[i])
		}
	}
	return out, nil
}

// Inline runs loop calls on the caller's goroutine.
type Inline struct{}

func (Inline) Call(_ context.Context, fn func()) error {
	fn()
	return nil
}
