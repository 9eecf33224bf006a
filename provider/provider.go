// Package provider is the catalog of model providers the chat can talk to.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/nachoal/kitgpt-go/llm"
)

// ErrUnknownProvider is returned for keys missing from the registry
var ErrUnknownProvider = errors.New("unknown provider")

// Factory builds a client for one model. apiKey is empty for providers
// that do not need one.
type Factory func(modelID, apiKey string) (llm.Client, error)

// Descriptor describes a provider. Descriptors are immutable once registered.
type Descriptor struct {
	Key         string
	Name        string
	KnownModels []string
	// EnvVar holds the API key. Empty means no authentication.
	EnvVar   string
	KeyHint  string
	UsageURL string
	Factory  Factory
}

// Prompter asks the user for a secret
type Prompter interface {
	PromptSecret(label, hint string) (string, error)
}

// Handle is an instantiated model
type Handle struct {
	ProviderKey  string
	ProviderName string
	ModelID      string
	Client       llm.Client
}

// Close releases the underlying client
func (h *Handle) Close() error {
	if h == nil || h.Client == nil {
		return nil
	}
	return h.Client.Close()
}

func (h *Handle) String() string {
	return h.ProviderKey + " - " + h.ModelID
}

// Registry maps provider keys to descriptors
type Registry struct {
	mu        sync.Mutex
	providers map[string]Descriptor
	order     []string
	envPath   string
	getenv    func(string) string
	setenv    func(string, string) error
}

// Option configures a Registry
type Option func(*Registry)

// WithEnvFile sets the .env file that receives keys entered during authentication
func WithEnvFile(path string) Option {
	return func(r *Registry) {
		r.envPath = path
	}
}

// WithEnv overrides environment access
func WithEnv(getenv func(string) string, setenv func(string, string) error) Option {
	return func(r *Registry) {
		r.getenv = getenv
		r.setenv = setenv
	}
}

// New creates a registry holding the given descriptors in order
func New(descriptors []Descriptor, opts ...Option) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]Descriptor, len(descriptors)),
		getenv:    os.Getenv,
		setenv:    os.Setenv,
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, d := range descriptors {
		if d.Key == "" || d.Factory == nil {
			return nil, fmt.Errorf("provider %q needs a key and a factory", d.Name)
		}
		if _, exists := r.providers[d.Key]; exists {
			return nil, fmt.Errorf("provider '%s' is already registered", d.Key)
		}
		r.providers[d.Key] = d
		r.order = append(r.order, d.Key)
	}
	return r, nil
}

// Default returns the registry with every built-in provider
func Default(opts ...Option) *Registry {
	r, err := New(Builtin(), opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// List returns the descriptors in registration order
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.providers[key])
	}
	return out
}

// Get returns the descriptor for key
func (r *Registry) Get(key string) (Descriptor, error) {
	d, ok := r.providers[key]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: '%s'", ErrUnknownProvider, key)
	}
	return d, nil
}

// Authenticated reports whether the provider's credentials are available
func (r *Registry) Authenticated(key string) bool {
	d, err := r.Get(key)
	if err != nil {
		return false
	}
	return d.EnvVar == "" || r.getenv(d.EnvVar) != ""
}

// Authenticate makes sure the provider's API key is set, asking the user
// for it when it is missing. Entered keys are exported to the process and
// saved to the env file when one is configured.
func (r *Registry) Authenticate(key string, prompter Prompter) error {
	d, err := r.Get(key)
	if err != nil {
		return err
	}
	if r.Authenticated(key) {
		return nil
	}
	if prompter == nil {
		return fmt.Errorf("%s is not set", d.EnvVar)
	}

	secret, err := prompter.PromptSecret(d.EnvVar, d.KeyHint)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", d.EnvVar, err)
	}
	if secret == "" {
		return fmt.Errorf("%s is required for %s", d.EnvVar, d.Name)
	}
	if err := r.setenv(d.EnvVar, secret); err != nil {
		return err
	}
	return r.persist(d.EnvVar, secret)
}

func (r *Registry) persist(name, value string) error {
	if r.envPath == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := godotenv.Read(r.envPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read %s: %w", r.envPath, err)
		}
		values = map[string]string{}
	}
	values[name] = value
	if err := godotenv.Write(values, r.envPath); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return os.Chmod(r.envPath, 0o600)
}

// Instantiate builds a client for modelID. Model IDs outside KnownModels
// are accepted since providers add models faster than this list changes.
func (r *Registry) Instantiate(key, modelID string) (*Handle, error) {
	d, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	if modelID == "" {
		return nil, fmt.Errorf("no model given for %s", d.Name)
	}

	var apiKey string
	if d.EnvVar != "" {
		apiKey = r.getenv(d.EnvVar)
		if apiKey == "" {
			return nil, fmt.Errorf("%s is not set, authenticate %s first", d.EnvVar, d.Name)
		}
	}

	client, err := d.Factory(modelID, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", d.Name, err)
	}
	return &Handle{
		ProviderKey:  d.Key,
		ProviderName: d.Name,
		ModelID:      modelID,
		Client:       client,
	}, nil
}

const onlinePrompt = `Please respond "I am online." and say nothing else!`

// Result is the outcome of a connectivity test
type Result struct {
	Handle *Handle
	OK     bool
	Err    error
}

// TestConnectivity sends a minimal request through h. Failures are
// reported in the result, never returned or panicked.
func TestConnectivity(ctx context.Context, h *Handle) (res Result) {
	res.Handle = h
	defer func() {
		if rec := recover(); rec != nil {
			res.OK = false
			res.Err = fmt.Errorf("provider panicked: %v", rec)
		}
	}()

	if h == nil || h.Client == nil {
		res.Err = errors.New("no model selected")
		return res
	}

	resp, err := h.Client.Chat(ctx, &llm.ChatRequest{
		Model:    h.ModelID,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: onlinePrompt}},
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.OK = resp != nil && resp.Message.Content != ""
	if !res.OK {
		res.Err = errors.New("empty response")
	}
	return res
}

// TestAll tests every handle concurrently. Results keep the order of handles.
func TestAll(ctx context.Context, handles []*Handle) []Result {
	results := make([]Result, len(handles))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			results[i] = TestConnectivity(ctx, h)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
