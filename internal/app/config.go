package app

// Config holds everything an App instance needs to run.
type Config struct {
	// BuildPath is the manifest file or directory tree to load targets
	// from.
	BuildPath string

	// Goals are the goal names to execute, in order. Empty means "build".
	Goals []string

	// TargetSpecs restricts execution to the transitive closure of the
	// given specs. Empty means the whole graph.
	TargetSpecs []string

	// Workers bounds concurrent rule executions.
	Workers int

	// Workdir is the root for per-version result directories.
	Workdir string

	// CacheDir enables the local artifact cache at the given directory.
	CacheDir string

	// RemoteCacheURL enables the remote artifact cache.
	RemoteCacheURL string

	// NoCache treats every target as invalid on every check.
	NoCache bool

	// InvalidateDependents widens invalidation to transitive dependents.
	InvalidateDependents bool

	// Watch keeps the app running, re-executing goals as files change.
	Watch bool

	LogFormat string
	LogLevel  string
}

func (c *Config) goals() []string {
	if len(c.Goals) == 0 {
		return []string{"build"}
	}
	return c.Goals
}
