package provider

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/hostbridge/hostbridge/internal/core/domain"
)

// =============================================================================
// SSH Session Contract
// =============================================================================

// Session is one authenticated shell on a remote host. Adapters hold a
// session for the full length of a deployment so consecutive steps do not
// re-handshake. Implementations classify failures as *domain.StepError.
type Session interface {
	// Run executes a command and returns its combined output.
	Run(ctx context.Context, command string) (string, error)

	// PutDir recursively copies a local directory to the remote path.
	PutDir(ctx context.Context, localDir, remoteDir string) error

	// WriteFile writes content to a remote path, replacing any existing file.
	WriteFile(ctx context.Context, remotePath string, content []byte, mode uint32) error

	// Close releases the connection.
	Close() error
}

// Dialer opens a session using the decrypted credentials.
type Dialer func(ctx context.Context, creds domain.CredentialBundle) (Session, error)

// credential field names understood by the shared hosting adapter.
const (
	CredHost      = "host"
	CredPort      = "port"
	CredUsername  = "username"
	CredPassword  = "password"
	CredKeyPEM    = "private_key"
	CredDirectory = "directory"
	CredSiteURL   = "site_url"
)

// defaultDeployRoot is used when the bundle names no target directory.
const defaultDeployRoot = "/var/www/html"

// =============================================================================
// Shared Hosting Adapter
// =============================================================================

// SharedHostingAdapter deploys to classic shared hosting over SSH. It opens
// one session per deployment, reuses it across steps, and closes it when the
// orchestrator signals the end of the deployment.
type SharedHostingAdapter struct {
	id      string
	profile domain.ProviderProfile
	dial    Dialer

	mu       sync.Mutex
	sessions map[string]Session // keyed by app name for the active deployment
}

// NewSharedHostingAdapter creates an SSH-backed adapter with the given
// identity and dialer.
func NewSharedHostingAdapter(id string, runtimes []string, dial Dialer) *SharedHostingAdapter {
	return &SharedHostingAdapter{
		id: id,
		profile: domain.ProviderProfile{
			ID:       id,
			Kind:     domain.KindSharedHostingSSH,
			Runtimes: runtimes,
		},
		dial:     dial,
		sessions: make(map[string]Session),
	}
}

// ID returns the registry identifier.
func (a *SharedHostingAdapter) ID() string {
	return a.id
}

// Profile describes the adapter.
func (a *SharedHostingAdapter) Profile() domain.ProviderProfile {
	return a.profile
}

// Upload copies the build artifact into the application directory under the
// configured deploy root.
func (a *SharedHostingAdapter) Upload(ctx context.Context, appName, artifact string, creds domain.CredentialBundle) error {
	sess, err := a.session(ctx, appName, creds)
	if err != nil {
		return err
	}

	remoteDir, err := remoteAppPath(creds, appName, "")
	if err != nil {
		return classifyRemote("Upload", err)
	}

	if _, err := sess.Run(ctx, "mkdir -p "+shellQuote(remoteDir)); err != nil {
		return classifyRemote("Upload", err)
	}
	if err := sess.PutDir(ctx, artifact, remoteDir); err != nil {
		return classifyRemote("Upload", err)
	}
	return nil
}

// InstallDependencies runs the install command from the step parameters in
// the application directory. Defaults to a production npm install.
func (a *SharedHostingAdapter) InstallDependencies(ctx context.Context, appName string, params map[string]string, creds domain.CredentialBundle) error {
	sess, err := a.session(ctx, appName, creds)
	if err != nil {
		return err
	}

	remoteDir, err := remoteAppPath(creds, appName, "")
	if err != nil {
		return classifyRemote("InstallDependencies", err)
	}

	command := params["command"]
	if command == "" {
		command = "npm install --production"
	}

	out, err := sess.Run(ctx, "cd "+shellQuote(remoteDir)+" && "+command)
	if err != nil {
		return classifyCommand("InstallDependencies", out, err)
	}
	return nil
}

// SetupDatabase provisions the database named in the step parameters.
// Re-running against an existing database succeeds without changes.
func (a *SharedHostingAdapter) SetupDatabase(ctx context.Context, appName string, params map[string]string, creds domain.CredentialBundle) error {
	sess, err := a.session(ctx, appName, creds)
	if err != nil {
		return err
	}

	dbName := params["database_name"]
	if dbName == "" {
		return domain.NewStepError(domain.CategoryDatabaseConfig, "SetupDatabase",
			"step parameters name no database", nil)
	}

	var command string
	switch params["database_type"] {
	case "postgresql":
		command = "createdb " + shellQuote(dbName)
	case "sqlite", "":
		// File-backed databases are created by the application on first use.
		return nil
	default:
		return domain.NewStepError(domain.CategoryDatabaseConfig, "SetupDatabase",
			fmt.Sprintf("unsupported database type %q", params["database_type"]), nil)
	}

	out, err := sess.Run(ctx, command)
	if err != nil {
		if strings.Contains(strings.ToLower(out), "already exists") {
			return nil
		}
		return classifyDatabase("SetupDatabase", out, err)
	}
	return nil
}

// Configure writes the settings as a dotenv file in the application
// directory. Writing identical settings produces the same file.
func (a *SharedHostingAdapter) Configure(ctx context.Context, appName string, settings map[string]string, creds domain.CredentialBundle) error {
	sess, err := a.session(ctx, appName, creds)
	if err != nil {
		return err
	}

	envPath, err := remoteAppPath(creds, appName, ".env")
	if err != nil {
		return classifyRemote("Configure", err)
	}

	if err := sess.WriteFile(ctx, envPath, renderDotenv(settings), 0o600); err != nil {
		return classifyRemote("Configure", err)
	}
	return nil
}

// Verify checks that the application directory exists on the target and, if
// the bundle names a site URL, that the site answers over HTTP.
func (a *SharedHostingAdapter) Verify(ctx context.Context, appName string, creds domain.CredentialBundle) (domain.HealthStatus, error) {
	sess, err := a.session(ctx, appName, creds)
	if err != nil {
		return domain.HealthUnreachable, err
	}

	remoteDir, err := remoteAppPath(creds, appName, "")
	if err != nil {
		return domain.HealthUnreachable, classifyRemote("Verify", err)
	}

	if _, err := sess.Run(ctx, "test -d "+shellQuote(remoteDir)); err != nil {
		return domain.HealthUnreachable, classifyRemote("Verify", err)
	}

	siteURL := creds.FieldOr(CredSiteURL, "")
	if siteURL == "" {
		return domain.HealthHealthy, nil
	}

	if _, err := sess.Run(ctx, "curl -sf -o /dev/null --max-time 10 "+shellQuote(siteURL)); err != nil {
		// The files landed but the site does not answer yet.
		return domain.HealthDegraded, nil
	}
	return domain.HealthHealthy, nil
}

// EndDeployment closes the session held for appName, if any.
func (a *SharedHostingAdapter) EndDeployment(appName string) error {
	a.mu.Lock()
	sess, ok := a.sessions[appName]
	delete(a.sessions, appName)
	a.mu.Unlock()

	if !ok {
		return nil
	}
	return sess.Close()
}

// =============================================================================
// Internals
// =============================================================================

// session returns the deployment's session, dialing on first use.
func (a *SharedHostingAdapter) session(ctx context.Context, appName string, creds domain.CredentialBundle) (Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sess, ok := a.sessions[appName]; ok {
		return sess, nil
	}

	sess, err := a.dial(ctx, creds)
	if err != nil {
		var stepErr *domain.StepError
		if errors.As(err, &stepErr) {
			return nil, err
		}
		return nil, domain.NewStepError(domain.CategoryConnectivity, "Dial", err.Error(), err)
	}

	a.sessions[appName] = sess
	return sess, nil
}

// remoteAppPath joins the deploy root, app name and an optional relative
// path, rejecting anything that resolves outside the deploy root.
func remoteAppPath(creds domain.CredentialBundle, appName, rel string) (string, error) {
	root := path.Clean(creds.FieldOr(CredDirectory, defaultDeployRoot))
	if !path.IsAbs(root) {
		return "", fmt.Errorf("deploy root %q is not absolute", root)
	}

	full := path.Clean(path.Join(root, appName, rel))
	if full != root && !strings.HasPrefix(full, root+"/") {
		return "", fmt.Errorf("path %q escapes deploy root %q", path.Join(appName, rel), root)
	}
	return full, nil
}

// renderDotenv produces deterministic KEY=value lines sorted by key.
func renderDotenv(settings map[string]string) []byte {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(settings[k])
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// shellQuote single-quotes an argument for the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// classifyRemote wraps filesystem-side failures, keeping any classification
// the transport already applied.
func classifyRemote(op string, err error) error {
	var stepErr *domain.StepError
	if errors.As(err, &stepErr) {
		return err
	}
	return domain.NewStepError(domain.CategoryRemoteWrite, op, err.Error(), err)
}

// classifyCommand classifies a failed remote command by its output.
func classifyCommand(op, out string, err error) error {
	var stepErr *domain.StepError
	if errors.As(err, &stepErr) {
		return err
	}

	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "permission denied"):
		return domain.NewStepError(domain.CategoryPermissionDenied, op, firstLine(out), err)
	case strings.Contains(lower, "no space left"), strings.Contains(lower, "read-only file system"):
		return domain.NewStepError(domain.CategoryRemoteWrite, op, firstLine(out), err)
	default:
		return domain.NewStepError(domain.CategoryUnknown, op, firstLine(out), err)
	}
}

// classifyDatabase classifies a failed database provisioning command.
func classifyDatabase(op, out string, err error) error {
	var stepErr *domain.StepError
	if errors.As(err, &stepErr) {
		return err
	}

	lower := strings.ToLower(out)
	if strings.Contains(lower, "permission denied") {
		return domain.NewStepError(domain.CategoryPermissionDenied, op, firstLine(out), err)
	}
	return domain.NewStepError(domain.CategoryDatabaseConfig, op, firstLine(out), err)
}

// firstLine trims command output to its first non-empty line.
func firstLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
