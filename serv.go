package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	http "github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/format"
	_ "github.com/model-collapse/annoconv/format/all"
	"github.com/model-collapse/annoconv/logger"
	"github.com/model-collapse/annoconv/media"
	"github.com/model-collapse/annoconv/media/cvimage"
)

var jobs map[string]*Job

func initialize() (err error) {
	path := os.Getenv("ANNOCONV_CONFIG")
	if path == "" {
		path = "./conf.json"
	}
	if err = LoadConfig(path); err != nil {
		return
	}

	if err = logger.Init(logger.Config{Level: GConf.LogLevel, Format: GConf.LogFormat}); err != nil {
		return
	}
	if GConf.Decoder == "opencv" {
		media.SetOpener(cvimage.Open)
	}

	if jobs, err = LoadJobs(GConf.JobsFile); err != nil {
		if !os.IsNotExist(err) {
			return
		}
		logger.L().Info("no jobs file", zap.String("path", GConf.JobsFile))
		jobs, err = map[string]*Job{}, nil
	}

	return
}

func main() {
	if err := initialize(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.L().Info("serving", zap.String("listen", GConf.Listen), zap.Strings("formats", format.Names()))
	if err := http.ListenAndServe(GConf.Listen, handle); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func handle(c *http.RequestCtx) {
	log := logger.L().With(zap.ByteString("path", c.Path()))
	log.Debug("request", zap.ByteString("query", c.URI().QueryString()))

	switch string(c.Path()) {
	case "/formats":
		writeJSON(c, http.StatusOK, format.Names())
	case "/detect":
		handleDetect(c)
	case "/convert":
		handleConvert(c)
	case "/compare":
		handleCompare(c)
	case "/run":
		handleRun(c)
	default:
		c.Error("not found", http.StatusNotFound)
	}
}

func writeJSON(c *http.RequestCtx, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.Error(err.Error(), http.StatusInternalServerError)
		return
	}
	c.SetContentType("application/json")
	c.SetStatusCode(status)
	c.Write(data)
}

func writeError(c *http.RequestCtx, err error) {
	status := dserrors.StatusCode(err)
	logger.L().Warn("request failed", zap.ByteString("path", c.Path()), zap.Int("status", status), zap.Error(err))

	body := map[string]any{"error": err.Error()}
	if e, ok := dserrors.As(err); ok {
		body["code"] = e.Code
		body["details"] = e.Details
	}
	writeJSON(c, status, body)
}

// dataPath resolves a client path inside GConf.DataDir.
func dataPath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	p := filepath.Join(GConf.DataDir, filepath.FromSlash(rel))
	r, err := filepath.Rel(GConf.DataDir, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q leaves the data directory", rel)
	}
	return p, nil
}

func badRequest(c *http.RequestCtx, err error) {
	writeJSON(c, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func handleDetect(c *http.RequestCtx) {
	p, err := dataPath(string(c.QueryArgs().Peek("path")))
	if err != nil {
		badRequest(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"formats": format.Detect(p)})
}

func subsetsArg(c *http.RequestCtx) []string {
	var out []string
	for _, v := range c.QueryArgs().PeekMulti("subset") {
		out = append(out, string(v))
	}
	return out
}

func handleConvert(c *http.RequestCtx) {
	args := c.QueryArgs()
	src, err := dataPath(string(args.Peek("src")))
	if err != nil {
		badRequest(c, err)
		return
	}

	out := newOutputDir()
	ds, err := format.Convert(
		string(args.Peek("from")), src,
		string(args.Peek("to")), out,
		format.ImportOptions{Subsets: subsetsArg(c)},
		format.ExportOptions{Lossy: args.GetBool("lossy"), SaveMedia: args.GetBool("save_media")},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, resultOf(string(args.Peek("src")), out, ds))
}

func handleCompare(c *http.RequestCtx) {
	args := c.QueryArgs()
	load := func(side string) (*dataset.Dataset, error) {
		p, err := dataPath(string(args.Peek(side)))
		if err != nil {
			return nil, err
		}
		return format.Import(string(args.Peek(side+"_format")), p, format.ImportOptions{Subsets: subsetsArg(c)})
	}

	a, err := load("a")
	if err != nil {
		writeError(c, err)
		return
	}
	b, err := load("b")
	if err != nil {
		writeError(c, err)
		return
	}

	var opts []dataset.CompareOption
	if args.GetBool("ignore_media") {
		opts = append(opts, dataset.IgnoreMedia())
	}
	if tol, err := args.GetUfloat("tolerance"); err == nil {
		opts = append(opts, dataset.WithTolerance(tol))
	}

	resp := map[string]any{"equal": true}
	if d := dataset.Compare(a, b, opts...); d != nil {
		resp["equal"] = false
		resp["diff"] = d
		resp["message"] = d.String()
	}
	writeJSON(c, http.StatusOK, resp)
}

func handleRun(c *http.RequestCtx) {
	name := c.QueryArgs().Peek("job")
	j, ok := jobs[string(name)]
	if !ok {
		c.Error(fmt.Sprintf("no such job %q", name), http.StatusNotFound)
		return
	}

	out := newOutputDir()
	results, err := j.Run(context.Background(), out)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"job": string(name), "output": out, "results": results})
}
