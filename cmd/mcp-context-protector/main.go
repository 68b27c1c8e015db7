// Command mcp-context-protector wraps a downstream MCP server with
// trust-on-first-use approval of its configuration, a guardrail/quarantine
// pipeline over tool responses, and ANSI control-sequence sanitization.
package main

import "github.com/trailofbits/mcp-context-protector/cmd/mcp-context-protector/cmd"

func main() {
	cmd.Execute()
}
