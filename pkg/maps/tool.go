package maps

import (
	"context"

	"github.com/harun/zombinator/pkg/toolexecutor"
)

// ToolName is the function name agents use to request a route plan.
const ToolName = "plan_survival_route"

// ToolDefinition exposes PlanRoute to agent runs.
func (c *Client) ToolDefinition() toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        ToolName,
		Description: "Plans a driving route between two addresses and returns travel time, distance and traffic delay.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "start_address", Type: "string", Description: "Address the route starts from", Required: true},
			{Name: "end_address", Type: "string", Description: "Address the route ends at", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			start, _ := params["start_address"].(string)
			end, _ := params["end_address"].(string)
			return c.PlanRoute(ctx, start, end)
		},
	}
}

// RegisterTools adds the maps tools to exec.
func (c *Client) RegisterTools(exec *toolexecutor.ToolExecutor) error {
	return exec.RegisterTool(c.ToolDefinition())
}
