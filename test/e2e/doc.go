/*
Package main provides end-to-end tests for a Docker log driver plugin.

# Package Structure

	test/e2e/
	├── main.go          Entry point: flags, config, AgentManager setup, Ginkgo runner
	├── tests.go         Ginkgo test specs (partial logs, malformed data, options, env)
	├── doc.go           This file
	└── infra/           Plugin lifecycle
	    ├── infra.go     AgentManager interface + AgentConfig
	    ├── process.go   ProcessAgentManager (local plugin binary)
	    ├── external.go  ExternalAgentManager (no-op, managed outside)
	    └── fake.go      FakeAgentManager (in-process fake plugin and search service)

# AgentManager

	type AgentManager interface {
	    StartAgent(cfg) / StopAgent() / RestartAgent(cfg)
	    RealPlugin() bool
	}

Selected via the -infra-mode flag ("process", "external" or "fake").
Specs that depend on plugin buffering (partial flush timeout, size limit)
are skipped when RealPlugin is false.

# Data Flow

Every test runs through the harness:

	┌──────────┐ frames ┌────────┐  HEC  ┌────────┐
	│ producer │───────▶│ plugin │──────▶│ Splunk │
	└──────────┘  fifo  └───▲────┘       └───▲────┘
	                        │ control        │ search <id>
	                   ┌────┴────────────────┴──┐
	                   │        harness          │
	                   └─────────────────────────┘

# Running

	go run ./test/e2e -infra-mode fake
	go run ./test/e2e -infra-mode process -plugin-binary ./splunk-log-plugin \
	    -hec-url https://localhost:8088 -hec-token $TOKEN -search-url https://localhost:8089
*/
package main
