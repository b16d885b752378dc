// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package vr

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/parallax-foundation/parallax/lib/ref"
)

// transitionLog records collaborator invocations in order so tests
// can assert the disconnect-before-connect and revoke-before-grant
// sequencing of a listener switch.
type transitionLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *transitionLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *transitionLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type fakeOracle struct {
	validity map[string]Validity
}

func oracleKey(component ref.Component, user ref.UserID) string {
	return component.Flatten() + "@" + user.String()
}

func (o *fakeOracle) set(component ref.Component, user ref.UserID, v Validity) {
	if o.validity == nil {
		o.validity = make(map[string]Validity)
	}
	o.validity[oracleKey(component, user)] = v
}

func (o *fakeOracle) Validity(component ref.Component, user ref.UserID) Validity {
	if v, ok := o.validity[oracleKey(component, user)]; ok {
		return v
	}
	return ValidityNotFound
}

type fakeBinding struct {
	component ref.Component
	user      ref.UserID
	log       *transitionLog

	mu           sync.Mutex
	connected    bool
	disconnected bool
	events       []Event
}

func (b *fakeBinding) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.log.add("connect %s %s", b.component, b.user)
	return nil
}

func (b *fakeBinding) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = true
	b.log.add("disconnect %s %s", b.component, b.user)
}

func (b *fakeBinding) Matches(component ref.Component, user ref.UserID) bool {
	return b.component == component && b.user == user
}

func (b *fakeBinding) DeliverEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	b.log.add("focus %s", event.FocusedComponent)
}

func (b *fakeBinding) Component() ref.Component { return b.component }
func (b *fakeBinding) User() ref.UserID         { return b.user }

func (b *fakeBinding) eventCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *fakeBinding) lastEvent() Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[len(b.events)-1]
}

func (b *fakeBinding) isDisconnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnected
}

type fakeBindingFactory struct {
	log      *transitionLog
	created  []*fakeBinding
	override func(ref.Component, ref.UserID) BindingHandle
}

func (f *fakeBindingFactory) new(component ref.Component, user ref.UserID) BindingHandle {
	if f.override != nil {
		return f.override(component, user)
	}
	binding := &fakeBinding{component: component, user: user, log: f.log}
	f.created = append(f.created, binding)
	return binding
}

type fakePackages struct {
	apps      map[string]AppInfo
	listeners map[string][]ref.Component
	appErr    error
}

func (p *fakePackages) AppInfo(pkg string) (*AppInfo, error) {
	if p.appErr != nil {
		return nil, p.appErr
	}
	info, ok := p.apps[pkg]
	if !ok {
		return nil, fmt.Errorf("package %q not installed", pkg)
	}
	return &info, nil
}

func (p *fakePackages) NotificationListeners(pkg string, user ref.UserID) ([]ref.Component, error) {
	return p.listeners[pkg], nil
}

type fakePermissions struct {
	log     *transitionLog
	granted map[string]bool
}

func permissionKey(pkg string, user ref.UserID) string {
	return pkg + "@" + user.String()
}

func (p *fakePermissions) HasOverlayPermission(pkg string, user ref.UserID) bool {
	return p.granted[permissionKey(pkg, user)]
}

func (p *fakePermissions) GrantOverlayPermission(pkg string, user ref.UserID) error {
	if p.granted == nil {
		p.granted = make(map[string]bool)
	}
	p.granted[permissionKey(pkg, user)] = true
	p.log.add("grant-overlay %s %s", pkg, user)
	return nil
}

func (p *fakePermissions) RevokeOverlayPermission(pkg string, user ref.UserID) error {
	delete(p.granted, permissionKey(pkg, user))
	p.log.add("revoke-overlay %s %s", pkg, user)
	return nil
}

type fakePolicy struct {
	log          *transitionLog
	access       map[string]bool
	rulesCleared []string
}

func (p *fakePolicy) AccessGranted(pkg string) bool { return p.access[pkg] }

func (p *fakePolicy) SetAccessGranted(pkg string, granted bool) error {
	if p.access == nil {
		p.access = make(map[string]bool)
	}
	if granted {
		p.access[pkg] = true
		p.log.add("grant-policy %s", pkg)
	} else {
		delete(p.access, pkg)
		p.log.add("revoke-policy %s", pkg)
	}
	return nil
}

func (p *fakePolicy) ClearRules(pkg string) error {
	p.rulesCleared = append(p.rulesCleared, pkg)
	p.log.add("clear-rules %s", pkg)
	return nil
}

type fakeSettings struct {
	values   map[ref.UserID]string
	readErr  error
	writeErr error
}

func (s *fakeSettings) EnabledNotificationListeners(user ref.UserID) (string, error) {
	if s.readErr != nil {
		return "", s.readErr
	}
	return s.values[user], nil
}

func (s *fakeSettings) SetEnabledNotificationListeners(user ref.UserID, flat string) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.values == nil {
		s.values = make(map[ref.UserID]string)
	}
	s.values[user] = flat
	return nil
}

type fakeOverlay struct {
	log        *transitionLog
	restricted bool
	exempt     string
}

func (o *fakeOverlay) SetRestriction(restricted bool, exemptPackage string) error {
	o.restricted = restricted
	o.exempt = exemptPackage
	o.log.add("overlay restricted=%t exempt=%q", restricted, exemptPackage)
	return nil
}

type fakeHook struct {
	log   *transitionLog
	calls []bool
	err   error
}

func (h *fakeHook) SetVrMode(enabled bool) error {
	h.calls = append(h.calls, enabled)
	h.log.add("hook enabled=%t", enabled)
	return h.err
}

// chanCallback forwards mode changes to a channel so tests can wait
// for asynchronous delivery.
type chanCallback struct {
	ch chan bool
}

func newChanCallback() *chanCallback {
	return &chanCallback{ch: make(chan bool, broadcastQueueDepth)}
}

func (c *chanCallback) ModeChanged(enabled bool) error {
	c.ch <- enabled
	return nil
}

// blockingCallback stalls the delivery goroutine on its first
// notification until released, recording every value it receives.
type blockingCallback struct {
	ch      chan bool
	entered chan struct{}
	resume  chan struct{}

	enterOnce  sync.Once
	resumeOnce sync.Once
}

func newBlockingCallback() *blockingCallback {
	return &blockingCallback{
		ch:      make(chan bool, 2*broadcastQueueDepth),
		entered: make(chan struct{}),
		resume:  make(chan struct{}),
	}
}

func (c *blockingCallback) ModeChanged(enabled bool) error {
	c.enterOnce.Do(func() {
		close(c.entered)
		<-c.resume
	})
	c.ch <- enabled
	return nil
}

func (c *blockingCallback) release() {
	c.resumeOnce.Do(func() { close(c.resume) })
}

// stallingBinding blocks inside DeliverEvent until released, standing
// in for a listener whose socket write has stalled.
type stallingBinding struct {
	component ref.Component
	user      ref.UserID
	entered   chan struct{}
	resume    chan struct{}

	enterOnce  sync.Once
	resumeOnce sync.Once
}

func newStallingBinding(component ref.Component, user ref.UserID) *stallingBinding {
	return &stallingBinding{
		component: component,
		user:      user,
		entered:   make(chan struct{}),
		resume:    make(chan struct{}),
	}
}

func (b *stallingBinding) Connect() error { return nil }
func (b *stallingBinding) Disconnect()    {}

func (b *stallingBinding) Matches(component ref.Component, user ref.UserID) bool {
	return b.component == component && b.user == user
}

func (b *stallingBinding) DeliverEvent(Event) {
	b.enterOnce.Do(func() { close(b.entered) })
	<-b.resume
}

func (b *stallingBinding) Component() ref.Component { return b.component }
func (b *stallingBinding) User() ref.UserID         { return b.user }

func (b *stallingBinding) release() {
	b.resumeOnce.Do(func() { close(b.resume) })
}

type failingCallback struct {
	ch chan bool
}

func newFailingCallback() *failingCallback {
	return &failingCallback{ch: make(chan bool, broadcastQueueDepth)}
}

func (c *failingCallback) ModeChanged(enabled bool) error {
	c.ch <- enabled
	return fmt.Errorf("callback transport gone")
}

func mustComponent(t *testing.T, flat string) ref.Component {
	t.Helper()
	component, err := ref.ParseComponent(flat)
	if err != nil {
		t.Fatalf("parsing component %q: %v", flat, err)
	}
	return component
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
