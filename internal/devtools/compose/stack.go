// Package compose starts and stops the local Docker Compose stacks used
// to poke at the dbaccess API by hand, and waits for their containers.
package compose

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrComposeFileMissing = errors.New("compose: compose file not found")
	ErrUnknownStack       = errors.New("compose: unknown stack")
)

const (
	DevProject   = "safe-access-dev"
	ImageProject = "safe-access-img"

	DevComposeFile   = "docker-compose.yaml"
	ImageComposeFile = "docker-compose.image.yaml"

	AppContainer = "safe-access-app"
)

// supportContainers run in both stacks.
var supportContainers = []string{
	"safe-access-mongo",
	"safe-access-postgres1",
	"safe-access-postgres2",
	"safe-access-prometheus",
	"safe-access-grafana",
}

// Stack is one compose project and the containers it is expected to run.
type Stack struct {
	Name       string
	File       string
	Project    string
	Containers []string

	// LocalDev stacks leave the API out; it is launched from the IDE
	// against the support containers.
	LocalDev bool

	// Message is shown once every container is up.
	Message string
}

// DevStack runs only the support containers.
func DevStack(dockerDir string) Stack {
	return Stack{
		Name:       "dev",
		File:       filepath.Join(dockerDir, DevComposeFile),
		Project:    DevProject,
		Containers: append([]string(nil), supportContainers...),
		LocalDev:   true,
		Message:    "Run the API from your IDE with Spring profile: dev",
	}
}

// ImageStack runs the support containers plus the prebuilt API image.
func ImageStack(dockerDir string) Stack {
	return Stack{
		Name:       "image",
		File:       filepath.Join(dockerDir, ImageComposeFile),
		Project:    ImageProject,
		Containers: append(append([]string(nil), supportContainers...), AppContainer),
		Message:    "Open in browser: http://127.0.0.1:8080/swagger-ui/index.html",
	}
}

func Stacks(dockerDir string) []Stack {
	return []Stack{DevStack(dockerDir), ImageStack(dockerDir)}
}

// Lookup finds a stack by name ("dev" or "image") or by project name.
func Lookup(dockerDir, name string) (Stack, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range Stacks(dockerDir) {
		if s.Name == name || s.Project == name {
			return s, nil
		}
	}
	return Stack{}, fmt.Errorf("%w: %q (want dev or image)", ErrUnknownStack, name)
}

// DefaultPrometheusPasswordHash is the scrape password digest the dev
// compose file seeds Prometheus with.
const DefaultPrometheusPasswordHash = "tXeBJWJtdUk7QOqeOfUre.IRbNJJxByeXcekAk0vEuNxrdnQaEMzS"

// EnvVar is one variable the API needs when launched by hand.
type EnvVar struct {
	Name  string
	Value string
}

// LocalDevEnv lists what the API's run configuration must set to talk to
// the dev stack. An empty passwordHash selects the seeded default.
func LocalDevEnv(passwordHash string) []EnvVar {
	if passwordHash == "" {
		passwordHash = DefaultPrometheusPasswordHash
	}
	return []EnvVar{
		{"TEST1_DB_URL", "jdbc:postgresql://localhost:5432/test1"},
		{"TEST1_DB_USERNAME", "admin"},
		{"TEST1_DB_PASSWORD", "admin"},
		{"TEST2_DB_URL", "jdbc:postgresql://localhost:5433/test2"},
		{"TEST2_DB_USERNAME", "admin"},
		{"TEST2_DB_PASSWORD", "admin"},
		{"PROMETHEUS_USER", "prometheus"},
		{"PROMETHEUS_PASSWORD_HASH", passwordHash},
	}
}
