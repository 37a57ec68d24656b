package playwrightdrv

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/conduit/pkg/types"
)

const (
	// DefaultMaxContexts limits concurrent browser contexts per manager.
	DefaultMaxContexts = 8

	// DefaultViewportWidth and DefaultViewportHeight define the viewport
	// for newly created contexts.
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720

	// DefaultActionTimeout is the Playwright default timeout in milliseconds.
	DefaultActionTimeout = 10000
)

// ContextOptions configures a new browser context.
type ContextOptions struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	TimeoutMS      float64
	InitialURL     string
}

// Session is one live browser context addressed by a context id.
type Session struct {
	ID         types.ContextID
	Browser    playwright.Browser
	Context    playwright.BrowserContext
	Page       playwright.Page
	Headless   bool
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// UpdateLastUsed updates the LastUsedAt timestamp to the current time.
func (s *Session) UpdateLastUsed() {
	s.LastUsedAt = time.Now()
}

// SessionManager owns the Playwright instance and all browser contexts.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[types.ContextID]*Session
	playwright  *playwright.Playwright
	maxContexts int
	idleTimeout time.Duration
	initialized bool
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:    make(map[types.ContextID]*Session),
		maxContexts: DefaultMaxContexts,
	}
}

// Initialize installs and starts the Playwright instance.
// This must be called before creating any contexts.
func (m *SessionManager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	// Discard driver output so it does not interleave with our own logs.
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	return nil
}

// StartContext creates a new browser context with the given id and options.
func (m *SessionManager) StartContext(id types.ContextID, opts ContextOptions) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return nil, fmt.Errorf("context %q already exists", id)
	}

	if len(m.sessions) >= m.maxContexts {
		return nil, fmt.Errorf("maximum number of contexts (%d) reached", m.maxContexts)
	}

	if !m.initialized {
		return nil, fmt.Errorf("session manager not initialized")
	}

	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = DefaultViewportWidth
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = DefaultViewportHeight
	}
	if opts.TimeoutMS == 0 {
		opts.TimeoutMS = DefaultActionTimeout
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	}
	browser, err := m.playwright.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}
	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(opts.TimeoutMS)

	if opts.InitialURL != "" {
		if _, err := page.Goto(opts.InitialURL); err != nil {
			context.Close()
			browser.Close()
			return nil, fmt.Errorf("failed to open %s: %w", opts.InitialURL, err)
		}
	}

	now := time.Now()
	session := &Session{
		ID:         id,
		Browser:    browser,
		Context:    context,
		Page:       page,
		Headless:   opts.Headless,
		CreatedAt:  now,
		LastUsedAt: now,
	}

	m.sessions[id] = session
	return session, nil
}

// CloseContext closes and removes a browser context.
func (m *SessionManager) CloseContext(id types.ContextID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[id]
	if !exists {
		return fmt.Errorf("context %q not found", id)
	}

	_ = session.Page.Close()
	_ = session.Context.Close()
	_ = session.Browser.Close()

	delete(m.sessions, id)
	return nil
}

// GetSession retrieves a live context by id.
func (m *SessionManager) GetSession(id types.ContextID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("context %q not found", id)
	}
	return session, nil
}

// Contexts returns the ids of all live contexts.
func (m *SessionManager) Contexts() []types.ContextID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]types.ContextID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown closes all contexts and stops Playwright.
func (m *SessionManager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, session := range m.sessions {
		session.Page.Close()
		session.Context.Close()
		session.Browser.Close()
		delete(m.sessions, id)
	}

	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
	}

	return nil
}

// SetMaxContexts sets the maximum number of concurrent contexts.
func (m *SessionManager) SetMaxContexts(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxContexts = max
}

// SetIdleTimeout sets the idle timeout for CleanupIdle. Zero disables
// idle cleanup.
func (m *SessionManager) SetIdleTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimeout = timeout
}

// CleanupIdle closes contexts unused for longer than the idle timeout
// and returns the ids it closed.
func (m *SessionManager) CleanupIdle() []types.ContextID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idleTimeout <= 0 {
		return nil
	}

	now := time.Now()
	var closed []types.ContextID
	for id, session := range m.sessions {
		if now.Sub(session.LastUsedAt) > m.idleTimeout {
			_ = session.Page.Close()
			_ = session.Context.Close()
			_ = session.Browser.Close()
			delete(m.sessions, id)
			closed = append(closed, id)
		}
	}
	return closed
}
