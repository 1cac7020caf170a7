package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	http "github.com/valyala/fasthttp"
)

func request(t *testing.T, uri string) (int, map[string]any) {
	t.Helper()
	var c http.RequestCtx
	c.Request.SetRequestURI(uri)
	handle(&c)

	var body map[string]any
	if ct := string(c.Response.Header.ContentType()); ct == "application/json" {
		require.NoError(t, json.Unmarshal(c.Response.Body(), &body))
	}
	return c.Response.StatusCode(), body
}

func TestFormats(t *testing.T) {
	var c http.RequestCtx
	c.Request.SetRequestURI("/formats")
	handle(&c)

	var names []string
	require.NoError(t, json.Unmarshal(c.Response.Body(), &names))
	assert.Contains(t, names, "coco_roboflow")
	assert.Contains(t, names, "datumaro")
}

func TestDetectHandler(t *testing.T) {
	useDirs(t, filepath.Join("format", "coco", "testdata"))

	status, body := request(t, "/detect?path=coco_roboflow")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"coco_roboflow"}, body["formats"])

	status, _ = request(t, "/detect?path=../../etc")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestConvertHandler(t *testing.T) {
	useDirs(t, filepath.Join("format", "coco", "testdata"))

	status, body := request(t, "/convert?from=coco_roboflow&src=coco_roboflow&to=datumaro")
	require.Equal(t, http.StatusOK, status, "%v", body)
	assert.Equal(t, float64(2), body["items"])
	assert.Equal(t, float64(5), body["annotations"])

	status, body = request(t, "/convert?from=coco_roboflow&src=coco_roboflow&to=yolo")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "UNREPRESENTABLE_ANNOTATION", body["code"])

	status, body = request(t, "/convert?from=nope&src=coco_roboflow&to=yolo")
	assert.Equal(t, http.StatusUnsupportedMediaType, status)
	assert.Equal(t, "UNSUPPORTED_FORMAT", body["code"])
}

func TestCompareHandler(t *testing.T) {
	useDirs(t, filepath.Join("format", "coco", "testdata"))

	status, body := request(t, "/compare?a=coco_roboflow&a_format=coco_roboflow&b=coco_roboflow&b_format=coco_roboflow")
	require.Equal(t, http.StatusOK, status, "%v", body)
	assert.Equal(t, true, body["equal"])

	status, body = request(t, "/compare?a=coco_roboflow&a_format=coco_roboflow&b=coco_roboflow&b_format=coco_roboflow&subset=train")
	require.Equal(t, http.StatusOK, status, "%v", body)
	assert.Equal(t, true, body["equal"])
}

func TestRunHandler(t *testing.T) {
	useDirs(t, filepath.Join("format", "coco", "testdata"))
	old := jobs
	t.Cleanup(func() { jobs = old })
	jobs = map[string]*Job{
		"native": {From: "coco_roboflow", To: "datumaro", Sources: []string{"coco_roboflow"}},
	}

	status, body := request(t, "/run?job=native")
	require.Equal(t, http.StatusOK, status, "%v", body)
	assert.Len(t, body["results"], 1)

	status, _ = request(t, "/run?job=missing")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestNotFound(t *testing.T) {
	status, _ := request(t, "/render")
	assert.Equal(t, http.StatusNotFound, status)
}
