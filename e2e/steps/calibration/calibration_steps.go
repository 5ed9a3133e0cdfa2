package calibration

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	POSTRaw(path string, raw []byte) error
	GET(path string) error
	Status() int
	Body() []byte
	JSON() (map[string]any, error)
	Stash(key string, value any)
	Stashed(key string) any
	ServerBinary() string
	GoodArtifactsDir() string
	RunServer(artifactsDir string) (string, error)
}

// Stash keys shared between steps within one scenario.
const (
	keyResult       = "calibration.result"
	keyResultRaw    = "calibration.result_raw"
	keyFirstResult  = "calibration.first"
	keySecondResult = "calibration.second"
	keyArtifactsDir = "calibration.artifacts_dir"
	keyStartupOut   = "calibration.startup_output"
	keyStartupErr   = "calibration.startup_err"
)

// RegisterSteps registers calibration-specific step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &calibrationSteps{tc: tc}

	// Evaluation steps
	ctx.Step(`^I evaluate method "([^"]*)" in role "([^"]*)"$`, steps.evaluate)
	ctx.Step(`^I evaluate method "([^"]*)" in role "([^"]*)" with evidence:$`, steps.evaluateWithEvidence)
	ctx.Step(`^I evaluate method "([^"]*)" in role "([^"]*)" twice$`, steps.evaluateTwice)

	// Result assertions
	ctx.Step(`^the active layers are "([^"]*)"$`, steps.activeLayersAre)
	ctx.Step(`^all (\d+) layers are active$`, steps.allLayersActive)
	ctx.Step(`^the layer "([^"]*)" scored exactly (\d+(?:\.\d+)?)$`, steps.layerScoredExactly)
	ctx.Step(`^the final score is between 0 and 1$`, steps.finalScoreBounded)
	ctx.Step(`^the final score equals the fused layer scores to 4 decimal places$`, steps.finalScoreMatchesFusion)

	// Determinism steps
	ctx.Step(`^both final scores are identical$`, steps.finalScoresIdentical)
	ctx.Step(`^both certificate ids are identical$`, steps.certificateIDsIdentical)

	// Verification steps
	ctx.Step(`^I submit the result for verification$`, steps.submitForVerification)
	ctx.Step(`^the verification verdict is valid$`, steps.verdictIsValid)

	// Startup failure steps
	ctx.Step(`^an artifact set whose fusion weights sum to 0\.95$`, steps.brokenArtifactSet)
	ctx.Step(`^the server starts against that artifact set$`, steps.startServerAgainstArtifacts)
	ctx.Step(`^startup fails mentioning "([^"]*)"$`, steps.startupFailsMentioning)

	ctx.After(func(c context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		if dir, ok := tc.Stashed(keyArtifactsDir).(string); ok && dir != "" {
			_ = os.RemoveAll(dir)
		}
		return c, nil
	})
}

type calibrationSteps struct {
	tc TestContext
}

func (s *calibrationSteps) evaluate(methodID, role string) error {
	return s.postEvaluate(map[string]any{
		"method_id": methodID,
		"role":      role,
	})
}

func (s *calibrationSteps) evaluateWithEvidence(methodID, role string, evidence *godog.DocString) error {
	if !json.Valid([]byte(evidence.Content)) {
		return fmt.Errorf("evidence docstring is not valid JSON: %s", evidence.Content)
	}
	return s.postEvaluate(map[string]any{
		"method_id": methodID,
		"role":      role,
		"evidence":  json.RawMessage(evidence.Content),
	})
}

func (s *calibrationSteps) postEvaluate(body map[string]any) error {
	if err := s.tc.POST("/v1/calibration/evaluate", body); err != nil {
		return err
	}
	if s.tc.Status() != 200 {
		// Keep the raw body so a failing status assertion can explain.
		return nil
	}
	parsed, err := s.tc.JSON()
	if err != nil {
		return err
	}
	s.tc.Stash(keyResult, parsed)
	s.tc.Stash(keyResultRaw, append([]byte(nil), s.tc.Body()...))
	return nil
}

func (s *calibrationSteps) evaluateTwice(methodID, role string) error {
	if err := s.evaluate(methodID, role); err != nil {
		return err
	}
	first, err := s.result()
	if err != nil {
		return err
	}
	s.tc.Stash(keyFirstResult, first)

	if err := s.evaluate(methodID, role); err != nil {
		return err
	}
	second, err := s.result()
	if err != nil {
		return err
	}
	s.tc.Stash(keySecondResult, second)
	return nil
}

func (s *calibrationSteps) result() (map[string]any, error) {
	parsed, ok := s.tc.Stashed(keyResult).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("no calibration result recorded; did the evaluate step succeed? (status %d: %s)",
			s.tc.Status(), string(s.tc.Body()))
	}
	return parsed, nil
}

func (s *calibrationSteps) activeLayersAre(expected string) error {
	parsed, err := s.result()
	if err != nil {
		return err
	}
	got, err := stringSlice(parsed["active_layers"])
	if err != nil {
		return err
	}

	want := strings.Split(expected, ",")
	for i := range want {
		want[i] = strings.TrimSpace(want[i])
	}
	sort.Strings(want)
	gotSorted := append([]string(nil), got...)
	sort.Strings(gotSorted)

	if strings.Join(gotSorted, ",") != strings.Join(want, ",") {
		return fmt.Errorf("active layers %v, expected %v", got, want)
	}
	return nil
}

func (s *calibrationSteps) allLayersActive(count int) error {
	parsed, err := s.result()
	if err != nil {
		return err
	}
	got, err := stringSlice(parsed["active_layers"])
	if err != nil {
		return err
	}
	if len(got) != count {
		return fmt.Errorf("%d layers active (%v), expected %d", len(got), got, count)
	}
	return nil
}

func (s *calibrationSteps) layerScoredExactly(layer string, expected float64) error {
	parsed, err := s.result()
	if err != nil {
		return err
	}
	scores, err := floatMap(parsed["layer_scores"])
	if err != nil {
		return err
	}
	got, ok := scores[layer]
	if !ok {
		return fmt.Errorf("layer %q not in scores %v", layer, scores)
	}
	if got != expected {
		return fmt.Errorf("layer %q scored %v, expected exactly %v", layer, got, expected)
	}
	return nil
}

func (s *calibrationSteps) finalScoreBounded() error {
	parsed, err := s.result()
	if err != nil {
		return err
	}
	final, ok := parsed["final_score"].(float64)
	if !ok {
		return fmt.Errorf("final_score missing or not a number: %v", parsed["final_score"])
	}
	if final < 0 || final > 1 {
		return fmt.Errorf("final score %v outside [0,1]", final)
	}
	return nil
}

// finalScoreMatchesFusion recomputes the Choquet fusion from the reported
// layer scores and the published weights, and compares to the reported
// final score at 4 decimal places.
func (s *calibrationSteps) finalScoreMatchesFusion() error {
	parsed, err := s.result()
	if err != nil {
		return err
	}
	final, _ := parsed["final_score"].(float64)
	active, err := stringSlice(parsed["active_layers"])
	if err != nil {
		return err
	}
	scores, err := floatMap(parsed["layer_scores"])
	if err != nil {
		return err
	}

	if err := s.tc.GET("/v1/calibration/weights"); err != nil {
		return err
	}
	weights, err := s.tc.JSON()
	if err != nil {
		return err
	}
	linear, err := floatMap(weights["linear"])
	if err != nil {
		return err
	}
	interaction, err := floatMap(weights["interaction"])
	if err != nil {
		return err
	}

	activeSet := make(map[string]bool, len(active))
	for _, layer := range active {
		activeSet[layer] = true
	}

	expected := 0.0
	for layer, weight := range linear {
		if activeSet[layer] {
			expected += weight * scores[layer]
		}
	}
	for pair, weight := range interaction {
		members := strings.SplitN(pair, ",", 2)
		if len(members) != 2 {
			return fmt.Errorf("malformed interaction pair %q", pair)
		}
		if activeSet[members[0]] && activeSet[members[1]] {
			expected += weight * math.Min(scores[members[0]], scores[members[1]])
		}
	}

	if math.Abs(expected-final) > 1e-4 {
		return fmt.Errorf("final score %v differs from recomputed fusion %v", final, expected)
	}
	return nil
}

func (s *calibrationSteps) finalScoresIdentical() error {
	first, second, err := s.pair()
	if err != nil {
		return err
	}
	if first["final_score"] != second["final_score"] {
		return fmt.Errorf("final scores differ: %v vs %v", first["final_score"], second["final_score"])
	}
	return nil
}

func (s *calibrationSteps) certificateIDsIdentical() error {
	first, second, err := s.pair()
	if err != nil {
		return err
	}
	firstID, err := certificateID(first)
	if err != nil {
		return err
	}
	secondID, err := certificateID(second)
	if err != nil {
		return err
	}
	if firstID != secondID {
		return fmt.Errorf("certificate ids differ: %s vs %s", firstID, secondID)
	}
	return nil
}

func (s *calibrationSteps) pair() (map[string]any, map[string]any, error) {
	first, ok := s.tc.Stashed(keyFirstResult).(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("no first result recorded; run the evaluate-twice step first")
	}
	second, ok := s.tc.Stashed(keySecondResult).(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("no second result recorded; run the evaluate-twice step first")
	}
	return first, second, nil
}

func (s *calibrationSteps) submitForVerification() error {
	raw, ok := s.tc.Stashed(keyResultRaw).([]byte)
	if !ok {
		return fmt.Errorf("no calibration result to verify; run an evaluate step first")
	}
	return s.tc.POSTRaw("/v1/calibration/verify", raw)
}

func (s *calibrationSteps) verdictIsValid() error {
	parsed, err := s.tc.JSON()
	if err != nil {
		return err
	}
	valid, ok := parsed["valid"].(bool)
	if !ok {
		return fmt.Errorf("verification response carries no boolean verdict: %v", parsed)
	}
	if !valid {
		return fmt.Errorf("certificate did not verify; expected id %v", parsed["expected_certificate_id"])
	}
	return nil
}

func (s *calibrationSteps) brokenArtifactSet() error {
	dir, err := os.MkdirTemp("", "calibra-artifacts-")
	if err != nil {
		return fmt.Errorf("create temp artifact dir: %w", err)
	}
	s.tc.Stash(keyArtifactsDir, dir)

	unchanged := []string{
		"intrinsic_calibration.json",
		"method_compatibility.json",
		"questionnaire_monolith.json",
		"governance_catalog.json",
	}
	for _, name := range unchanged {
		data, err := os.ReadFile(filepath.Join(s.tc.GoodArtifactsDir(), name))
		if err != nil {
			return fmt.Errorf("read good artifact %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			return fmt.Errorf("write artifact %s: %w", name, err)
		}
	}

	badWeights := `{
  "version": "choquet-bad",
  "linear": {"BASE": 0.5, "CHAIN": 0.25},
  "interaction": {"BASE,CHAIN": 0.2}
}`
	if err := os.WriteFile(filepath.Join(dir, "fusion_weights.json"), []byte(badWeights), 0o600); err != nil {
		return fmt.Errorf("write bad weights: %w", err)
	}
	return nil
}

func (s *calibrationSteps) startServerAgainstArtifacts() error {
	if s.tc.ServerBinary() == "" {
		return godog.ErrPending
	}
	dir, ok := s.tc.Stashed(keyArtifactsDir).(string)
	if !ok {
		return fmt.Errorf("no artifact set prepared; run the broken-artifacts step first")
	}
	output, err := s.tc.RunServer(dir)
	s.tc.Stash(keyStartupOut, output)
	s.tc.Stash(keyStartupErr, err)
	return nil
}

func (s *calibrationSteps) startupFailsMentioning(fragment string) error {
	err, _ := s.tc.Stashed(keyStartupErr).(error)
	output, _ := s.tc.Stashed(keyStartupOut).(string)
	if err == nil {
		return fmt.Errorf("server started despite broken weights; output: %s", output)
	}
	if !strings.Contains(output, fragment) {
		return fmt.Errorf("startup output does not mention %q: %s", fragment, output)
	}
	return nil
}

func stringSlice(value any) ([]string, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON array, got %T", value)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string array element, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

func floatMap(value any) (map[string]float64, error) {
	raw, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", value)
	}
	out := make(map[string]float64, len(raw))
	for key, item := range raw {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("expected numeric value for %q, got %T", key, item)
		}
		out[key] = f
	}
	return out, nil
}

func certificateID(result map[string]any) (string, error) {
	cert, ok := result["certificate"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("result carries no certificate: %v", result)
	}
	id, ok := cert["certificate_id"].(string)
	if !ok {
		return "", fmt.Errorf("certificate carries no id: %v", cert)
	}
	return id, nil
}
