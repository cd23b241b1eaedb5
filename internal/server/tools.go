package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

// thresholdProperties describes the optional threshold overrides shared by
// every tool that classifies pixels.
func thresholdProperties(props map[string]interface{}) map[string]interface{} {
	for _, ch := range []string{"r", "g", "b"} {
		props[ch] = map[string]interface{}{
			"type":        "integer",
			"minimum":     0,
			"maximum":     255,
			"description": "Background limit for the " + ch + " channel. A pixel is background only when every channel is strictly above its limit. Default 250",
		}
	}
	props["background"] = map[string]interface{}{
		"type":        "string",
		"description": "Background limit as a hex colour (e.g. '#FAFAFA'). Overrides r, g and b",
	}
	return props
}

func rangeProperties(props map[string]interface{}) map[string]interface{} {
	props["from"] = map[string]interface{}{
		"type":        "integer",
		"minimum":     0,
		"maximum":     255,
		"description": "Lowest grey level made transparent. Default 250",
		"default":     250,
	}
	props["to"] = map[string]interface{}{
		"type":        "integer",
		"minimum":     0,
		"maximum":     255,
		"description": "Highest grey level made transparent. Default 255",
		"default":     255,
	}
	return props
}

func batchProperties(props map[string]interface{}) map[string]interface{} {
	props["output_dir"] = map[string]interface{}{
		"type":        "string",
		"description": "Existing directory for the trimmed images",
	}
	props["prefix"] = map[string]interface{}{
		"type":        "string",
		"description": "Output file name prefix. Default 'image_'",
		"default":     "image_",
	}
	props["format"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"png", "jpg", "jpeg", "bmp", "gif", "tif", "tiff", "webp"},
		"description": "Output format. Default png",
		"default":     "png",
	}
	props["workers"] = map[string]interface{}{
		"type":        "integer",
		"description": "Images processed in parallel. Default: number of CPUs",
	}
	props["transparent"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Make near-white greys transparent after trimming. jpg, bmp and gif output is written as png",
		"default":     false,
	}
	props["report_path"] = map[string]interface{}{
		"type":        "string",
		"description": "Optional path for a YAML report of the run",
	}
	return thresholdProperties(props)
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format and whether it has an alpha channel.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_sample_color",
			Description: "Get the exact color value at a pixel and whether the trimmer treats it as background.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": thresholdProperties(map[string]interface{}{
					"path": pathProperty(),
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "X coordinate (0-based, from left)",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Y coordinate (0-based, from top)",
					},
				}),
				"required": []string{"path", "x", "y"},
			},
		},

		// Trimming
		{
			Name:        "image_bounding_box",
			Description: "Compute the inclusive bounding box of all non-background pixels without modifying the image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": thresholdProperties(map[string]interface{}{
					"path": pathProperty(),
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_trim",
			Description: "Crop uniform near-white borders from an image. Saves the result when output_dir is given, otherwise returns a base64 PNG preview.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": rangeProperties(thresholdProperties(map[string]interface{}{
					"path": pathProperty(),
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Existing directory to save the trimmed image in",
					},
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Output file name without extension. Default '<input name>_trimmed'",
					},
					"format": map[string]interface{}{
						"type":        "string",
						"description": "Output format. Default png",
						"default":     "png",
					},
					"transparent": map[string]interface{}{
						"type":        "boolean",
						"description": "Make greys in [from, to] transparent after trimming. jpg, bmp and gif output is written as png",
						"default":     false,
					},
					"preview": map[string]interface{}{
						"type":        "boolean",
						"description": "Include a base64 PNG preview of the result",
					},
					"preview_scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional preview scale factor. Default 1.0",
						"default":     1.0,
					},
				})),
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_make_transparent",
			Description: "Set alpha to 0 on every exact grey pixel (R=G=B) whose level is within [from, to] and save the result as PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": rangeProperties(map[string]interface{}{
					"path": pathProperty(),
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Existing directory to save the result in",
					},
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Output file name without extension. Default '<input name>_transparent'",
					},
				}),
				"required": []string{"path", "output_dir"},
			},
		},

		// Batch Operations
		{
			Name:        "image_trim_directory",
			Description: "Trim every image in a directory and save them as <prefix><index> in sorted file order. Reports progress when a progress token is supplied.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": batchProperties(map[string]interface{}{
					"input_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory containing the images to trim",
					},
				}),
				"required": []string{"input_dir", "output_dir"},
			},
		},
		{
			Name:        "image_extract_database",
			Description: "Extract OLE picture fields from a Microsoft Access database, trim them and save them as <prefix><id>. Reports progress when a progress token is supplied.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": batchProperties(map[string]interface{}{
					"database": map[string]interface{}{
						"type":        "string",
						"description": "Path to the .mdb or .accdb file",
					},
					"driver": map[string]interface{}{
						"type":        "string",
						"description": "database/sql driver name. Default 'adodb'",
					},
					"dsn": map[string]interface{}{
						"type":        "string",
						"description": "Connection string; %s is replaced by database",
					},
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Query selecting the id and blob columns. Default 'SELECT * FROM OLE WHERE idOle > 10'",
					},
					"id_column": map[string]interface{}{
						"type":        "string",
						"description": "Integer id column. Default 'idOle'",
					},
					"blob_column": map[string]interface{}{
						"type":        "string",
						"description": "OLE object column. Default 'object'",
					},
				}),
				"required": []string{"output_dir"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
