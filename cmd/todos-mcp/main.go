// Command todos-mcp runs the shared todo list MCP server.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(submain(context.Background()))
}
