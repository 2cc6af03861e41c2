package api

import "github.com/sdlcloop/controller/pkg/config"

// testConfig returns a minimal Config sufficient for handler tests that
// don't exercise config-driven behavior beyond non-nil access.
func testConfig() *config.Config {
	return &config.Config{
		System: &config.SystemConfig{
			ListenAddr:   ":8080",
			DashboardURL: "http://localhost:5173",
			GitHub:       &config.GitHubConfig{TokenEnv: "GITHUB_TOKEN"},
		},
	}
}
