package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
	"time"
)

func TestNew_AutoDimension(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "TestFunction")
	initOnce.Do(func() {})
	functionName = "TestFunction"

	r := New("PersonTracking")
	if r.namespace != "PersonTracking" {
		t.Errorf("expected namespace PersonTracking, got %s", r.namespace)
	}
	if r.dimensions["FunctionName"] != "TestFunction" {
		t.Errorf("expected FunctionName dimension TestFunction, got %s", r.dimensions["FunctionName"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	functionName = "" // isolation

	rec := New("PersonTracking")
	rec.Dimension("Operation", "completion")
	rec.Duration("CompletionLatencyMs", 1234*time.Millisecond)
	rec.Metric("FramesStored", 42, UnitCount)
	rec.Property("jobId", "abc-123")
	rec.Flush()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	awsDir, ok := doc["_aws"]
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	awsMap, ok := awsDir.(map[string]interface{})
	if !ok {
		t.Fatal("_aws directive is not a map")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}

	cwMetrics, ok := awsMap["CloudWatchMetrics"]
	if !ok {
		t.Fatal("missing CloudWatchMetrics in _aws directive")
	}
	cwArr, ok := cwMetrics.([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != "PersonTracking" {
		t.Errorf("expected namespace PersonTracking, got %v", cw["Namespace"])
	}

	if doc["Operation"] != "completion" {
		t.Errorf("expected Operation=completion, got %v", doc["Operation"])
	}
	if doc["CompletionLatencyMs"] != float64(1234) {
		t.Errorf("expected CompletionLatencyMs=1234, got %v", doc["CompletionLatencyMs"])
	}
	if doc["FramesStored"] != float64(42) {
		t.Errorf("expected FramesStored=42, got %v", doc["FramesStored"])
	}
	if doc["jobId"] != "abc-123" {
		t.Errorf("expected jobId=abc-123, got %v", doc["jobId"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rec := New("PersonTracking")
	rec.Flush() // no metrics, no output

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_Count(t *testing.T) {
	functionName = ""
	rec := New("PersonTracking")
	rec.Count("DuplicateSignals")

	if v, ok := rec.values["DuplicateSignals"]; !ok || v != float64(1) {
		t.Errorf("expected DuplicateSignals=1, got %v", v)
	}
	if m, ok := rec.metrics["DuplicateSignals"]; !ok || m.Unit != UnitCount {
		t.Errorf("expected unit Count, got %v", m.Unit)
	}
}

func TestRecorder_Chaining(t *testing.T) {
	functionName = ""
	rec := New("PersonTracking").
		Dimension("Operation", "completion").
		Duration("CompletionLatencyMs", 100*time.Millisecond).
		Count("SucceededJobs").
		Property("jobId", "xyz")

	if rec.dimensions["Operation"] != "completion" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["CompletionLatencyMs"] != float64(100) {
		t.Error("chaining Duration failed")
	}
	if rec.values["SucceededJobs"] != float64(1) {
		t.Error("chaining Count failed")
	}
	if rec.properties["jobId"] != "xyz" {
		t.Error("chaining Property failed")
	}
}
