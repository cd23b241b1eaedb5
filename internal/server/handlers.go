package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ironsheep/image-trimmer/internal/batch"
	"github.com/ironsheep/image-trimmer/internal/imaging"
	"github.com/ironsheep/image-trimmer/internal/oledb"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "image_trim").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`

	// Meta carries the optional progress token. Batch tools report
	// notifications/progress against it.
	Meta *struct {
		ProgressToken interface{} `json:"progressToken,omitempty"`
	} `json:"_meta,omitempty"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	var progress batch.ProgressFunc
	if params.Meta != nil && params.Meta.ProgressToken != nil {
		progress = s.progressNotifier(params.Meta.ProgressToken)
	}

	result, err := s.executeTool(context.Background(), params.Name, params.Arguments, progress)
	if err != nil {
		log.Printf("Tool %s failed: %v", params.Name, err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// progressNotifier returns a ProgressFunc that emits notifications/progress.
func (s *Server) progressNotifier(token interface{}) batch.ProgressFunc {
	return func(done, total int) {
		s.notify("notifications/progress", map[string]interface{}{
			"progressToken": token,
			"progress":      done,
			"total":         total,
		})
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values from the server configuration
//  3. Loads images from cache as needed
//  4. Calls the appropriate imaging or batch function
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage, progress batch.ProgressFunc) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_sample_color":
		return s.handleImageSampleColor(args)

	// Trimming
	case "image_bounding_box":
		return s.handleImageBoundingBox(args)
	case "image_trim":
		return s.handleImageTrim(args)
	case "image_make_transparent":
		return s.handleImageMakeTransparent(args)

	// Batch Operations
	case "image_trim_directory":
		return s.handleImageTrimDirectory(ctx, args, progress)
	case "image_extract_database":
		return s.handleImageExtractDatabase(ctx, args, progress)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = []byte("{}")
	}
	return json.Unmarshal(args, v)
}

// thresholdArgs overrides the configured threshold. Background wins over
// the individual channels.
type thresholdArgs struct {
	R          *int   `json:"r,omitempty"`
	G          *int   `json:"g,omitempty"`
	B          *int   `json:"b,omitempty"`
	Background string `json:"background,omitempty"`
}

func (a thresholdArgs) resolve(base imaging.Threshold) (imaging.Threshold, error) {
	if a.Background != "" {
		return imaging.ParseThreshold(a.Background)
	}
	t := base
	for _, ch := range []struct {
		name string
		v    *int
		dst  *uint8
	}{
		{"r", a.R, &t.R},
		{"g", a.G, &t.G},
		{"b", a.B, &t.B},
	} {
		if ch.v == nil {
			continue
		}
		if *ch.v < 0 || *ch.v > 255 {
			return t, fmt.Errorf("threshold %s must be between 0 and 255, got %d", ch.name, *ch.v)
		}
		*ch.dst = uint8(*ch.v)
	}
	return t, nil
}

// rangeArgs overrides the configured transparency range.
type rangeArgs struct {
	From *int `json:"from,omitempty"`
	To   *int `json:"to,omitempty"`
}

func (a rangeArgs) resolve(from, to uint8) (uint8, uint8, error) {
	for _, v := range []*int{a.From, a.To} {
		if v != nil && (*v < 0 || *v > 255) {
			return 0, 0, fmt.Errorf("transparency range must be between 0 and 255, got %d", *v)
		}
	}
	if a.From != nil {
		from = uint8(*a.From)
	}
	if a.To != nil {
		to = uint8(*a.To)
	}
	return from, to, nil
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

type imageSampleColorArgs struct {
	Path string `json:"path"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	thresholdArgs
}

func (s *Server) handleImageSampleColor(args json.RawMessage) (interface{}, error) {
	var a imageSampleColorArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	t, err := a.resolve(s.cfg.BackgroundThreshold())
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.SampleColor(img, a.X, a.Y, t)
}

// === Trimming Handlers ===

type imageBoundingBoxArgs struct {
	Path string `json:"path"`
	thresholdArgs
}

// BoundingBoxResult reports the foreground box of an image.
type BoundingBoxResult struct {
	Empty       bool                 `json:"empty"`
	Box         *imaging.BoundingBox `json:"box,omitempty"`
	Width       int                  `json:"width"`
	Height      int                  `json:"height"`
	ImageWidth  int                  `json:"image_width"`
	ImageHeight int                  `json:"image_height"`
	Threshold   string               `json:"threshold"`
}

func (s *Server) handleImageBoundingBox(args json.RawMessage) (interface{}, error) {
	var a imageBoundingBoxArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	t, err := a.resolve(s.cfg.BackgroundThreshold())
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	buf := imaging.FromImage(img)
	box, err := imaging.ComputeBoundingBox(buf, t)
	if err != nil {
		return nil, err
	}

	result := &BoundingBoxResult{
		Empty:       box.Empty(),
		Width:       box.Width(),
		Height:      box.Height(),
		ImageWidth:  buf.Width,
		ImageHeight: buf.Height,
		Threshold:   t.Hex(),
	}
	if !box.Empty() {
		result.Box = &box
	}
	return result, nil
}

type imageTrimArgs struct {
	Path      string  `json:"path"`
	OutputDir string  `json:"output_dir"`
	Name      string  `json:"name"`
	Format    string  `json:"format"`
	Preview   bool    `json:"preview"`
	Scale     float64 `json:"preview_scale"`

	Transparent bool `json:"transparent"`
	rangeArgs
	thresholdArgs
}

// TrimResult describes a trimmed image.
type TrimResult struct {
	Box         imaging.BoundingBox    `json:"box"`
	Width       int                    `json:"width"`
	Height      int                    `json:"height"`
	Transparent int                    `json:"transparent_pixels,omitempty"`
	Output      string                 `json:"output,omitempty"`
	Preview     *imaging.PreviewResult `json:"preview,omitempty"`
}

func (s *Server) handleImageTrim(args json.RawMessage) (interface{}, error) {
	var a imageTrimArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	t, err := a.thresholdArgs.resolve(s.cfg.BackgroundThreshold())
	if err != nil {
		return nil, err
	}
	from, to, err := a.rangeArgs.resolve(s.cfg.TransparentRange())
	if err != nil {
		return nil, err
	}
	if a.OutputDir == "" && !a.Preview {
		a.Preview = true
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	buf := imaging.FromImage(img)
	box, err := imaging.ComputeBoundingBox(buf, t)
	if err != nil {
		return nil, err
	}
	if box.Empty() {
		return nil, fmt.Errorf("%w (threshold %s)", imaging.ErrEmptyImage, t.Hex())
	}
	cropped, err := imaging.Crop(buf, box)
	if err != nil {
		return nil, err
	}

	result := &TrimResult{Box: box, Width: cropped.Width, Height: cropped.Height}
	if a.Transparent {
		if result.Transparent, err = imaging.ApplyTransparency(cropped, from, to); err != nil {
			return nil, err
		}
	}

	out, err := imaging.ToImage(cropped)
	if err != nil {
		return nil, err
	}
	if a.OutputDir != "" {
		name := a.Name
		if name == "" {
			name = trimmedName(a.Path)
		}
		opts := s.cfg.SaveOptions()
		if a.Format != "" {
			opts.Format = a.Format
		}
		if a.Transparent {
			opts = opts.WithAlpha()
		}
		if result.Output, err = imaging.Save(out, a.OutputDir, name, opts); err != nil {
			return nil, err
		}
	}
	if a.Preview {
		if result.Preview, err = imaging.Preview(out, a.Scale); err != nil {
			return nil, err
		}
	}
	return result, nil
}

type imageMakeTransparentArgs struct {
	Path      string `json:"path"`
	OutputDir string `json:"output_dir"`
	Name      string `json:"name"`
	rangeArgs
}

// TransparencyResult reports the outcome of a transparency pass.
type TransparencyResult struct {
	Changed int    `json:"changed_pixels"`
	From    uint8  `json:"from"`
	To      uint8  `json:"to"`
	Output  string `json:"output"`
}

func (s *Server) handleImageMakeTransparent(args json.RawMessage) (interface{}, error) {
	var a imageMakeTransparentArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.OutputDir == "" {
		return nil, errors.New("output_dir is required")
	}
	from, to, err := a.resolve(s.cfg.TransparentRange())
	if err != nil {
		return nil, err
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	// FromImage copies, so the cached image is left untouched.
	buf := imaging.FromImage(img)
	changed, err := imaging.ApplyTransparency(buf, from, to)
	if err != nil {
		return nil, err
	}
	out, err := imaging.ToImage(buf)
	if err != nil {
		return nil, err
	}

	name := a.Name
	if name == "" {
		name = baseName(a.Path) + "_transparent"
	}
	// Transparency needs an alpha-capable format.
	opts := s.cfg.SaveOptions()
	opts.Format = "png"
	path, err := imaging.Save(out, a.OutputDir, name, opts)
	if err != nil {
		return nil, err
	}
	return &TransparencyResult{Changed: changed, From: from, To: to, Output: path}, nil
}

// === Batch Handlers ===

type batchArgs struct {
	OutputDir   string  `json:"output_dir"`
	Prefix      *string `json:"prefix,omitempty"`
	Format      string  `json:"format"`
	Workers     int     `json:"workers"`
	Transparent bool    `json:"transparent"`
	ReportPath  string  `json:"report_path"`
	thresholdArgs
}

func (s *Server) batchRunner(a batchArgs, progress batch.ProgressFunc) (*batch.Runner, error) {
	t, err := a.resolve(s.cfg.BackgroundThreshold())
	if err != nil {
		return nil, err
	}

	opts := s.cfg.BatchOptions(progress)
	opts.Threshold = t
	opts.Transparency = opts.Transparency || a.Transparent
	if a.Prefix != nil {
		if strings.ContainsAny(*a.Prefix, `/\`) {
			return nil, fmt.Errorf("%w: prefix %q contains a path separator", imaging.ErrInvalidName, *a.Prefix)
		}
		opts.Prefix = *a.Prefix
	}
	if a.Format != "" {
		opts.Save.Format = a.Format
	}
	if a.Workers > 0 {
		opts.Workers = a.Workers
	}
	return batch.New(opts), nil
}

func writeReport(rep *batch.Report, path string) error {
	if path == "" || rep == nil {
		return nil
	}
	return rep.WriteFile(path)
}

type imageTrimDirectoryArgs struct {
	InputDir string `json:"input_dir"`
	batchArgs
}

func (s *Server) handleImageTrimDirectory(ctx context.Context, args json.RawMessage, progress batch.ProgressFunc) (interface{}, error) {
	var a imageTrimDirectoryArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.InputDir == "" || a.OutputDir == "" {
		return nil, errors.New("input_dir and output_dir are required")
	}
	runner, err := s.batchRunner(a.batchArgs, progress)
	if err != nil {
		return nil, err
	}

	rep, err := runner.TrimDirectory(ctx, a.InputDir, a.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := writeReport(rep, a.ReportPath); err != nil {
		return nil, err
	}
	return rep, nil
}

type imageExtractDatabaseArgs struct {
	Database   string `json:"database"`
	Driver     string `json:"driver"`
	DSN        string `json:"dsn"`
	Query      string `json:"query"`
	IDColumn   string `json:"id_column"`
	BlobColumn string `json:"blob_column"`
	batchArgs
}

func (s *Server) handleImageExtractDatabase(ctx context.Context, args json.RawMessage, progress batch.ProgressFunc) (interface{}, error) {
	var a imageExtractDatabaseArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.OutputDir == "" {
		return nil, errors.New("output_dir is required")
	}
	if a.Database == "" && a.DSN == "" {
		return nil, errors.New("database or dsn is required")
	}

	db := s.cfg.Database
	for _, o := range []struct {
		dst *string
		v   string
	}{
		{&db.Driver, a.Driver},
		{&db.DSN, a.DSN},
		{&db.Query, a.Query},
		{&db.IDColumn, a.IDColumn},
		{&db.BlobColumn, a.BlobColumn},
	} {
		if o.v != "" {
			*o.dst = o.v
		}
	}

	runner, err := s.batchRunner(a.batchArgs, progress)
	if err != nil {
		return nil, err
	}

	ex, err := oledb.Open(db.Driver, oledb.DSN(db.DSN, a.Database), db.IDColumn, db.BlobColumn)
	if err != nil {
		return nil, err
	}
	defer ex.Close()

	rep, err := runner.ExtractDatabase(ctx, ex, db.Query, a.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := writeReport(rep, a.ReportPath); err != nil {
		return nil, err
	}
	return rep, nil
}

func baseName(path string) string {
	name := path
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}

func trimmedName(path string) string {
	return baseName(path) + "_trimmed"
}
