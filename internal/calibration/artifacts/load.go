package artifacts

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"

	"calibra/pkg/domain"
)

const (
	// weightSumTolerance absorbs float accumulation error when checking
	// that linear and interaction weights normalize to 1.
	weightSumTolerance = 1e-6

	// antiUniversalityCeiling caps the mean declared compatibility of a
	// method present in all three contextual maps.
	antiUniversalityCeiling = 0.9
)

// Option configures Load.
type Option func(*loader)

// WithGovernanceKey enables catalog signature verification. With a key
// configured, a missing or invalid signature_jws is fatal.
func WithGovernanceKey(key []byte) Option {
	return func(l *loader) {
		l.governanceKey = key
	}
}

type loader struct {
	dir           string
	governanceKey []byte
}

// Load reads and validates the five artifacts under dir. Any missing
// file, parse failure, or invariant violation returns a
// ConfigurationError and no Store.
func Load(dir string, opts ...Option) (*Store, error) {
	l := &loader{dir: dir}
	for _, opt := range opts {
		opt(l)
	}

	store := &Store{}

	if err := l.loadIntrinsic(store); err != nil {
		return nil, err
	}
	if err := l.loadCompatibility(store); err != nil {
		return nil, err
	}
	if err := l.loadWeights(store); err != nil {
		return nil, err
	}
	if err := l.loadMonolith(store); err != nil {
		return nil, err
	}
	if err := l.loadGovernance(store); err != nil {
		return nil, err
	}

	return store, nil
}

func (l *loader) readFile(name string, v any) error {
	raw, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		return configWrap(name, "read", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return configWrap(name, "parse", err)
	}
	return nil
}

type intrinsicFile struct {
	Methods map[string]IntrinsicRow `json:"methods"`
}

func (l *loader) loadIntrinsic(store *Store) error {
	var file intrinsicFile
	if err := l.readFile(FileIntrinsic, &file); err != nil {
		return err
	}
	if file.Methods == nil {
		return configErr(FileIntrinsic, "missing methods object")
	}
	store.intrinsic = file.Methods
	return nil
}

type compatibilityFile struct {
	Methods map[string]CompatibilityRow   `json:"methods"`
	Chain   map[string]map[string]float64 `json:"chain,omitempty"`
}

func (l *loader) loadCompatibility(store *Store) error {
	var file compatibilityFile
	if err := l.readFile(FileCompatibility, &file); err != nil {
		return err
	}
	if file.Methods == nil {
		return configErr(FileCompatibility, "missing methods object")
	}

	// Anti-universality: a method declared in all three contextual maps
	// may not average near-maximal compatibility. Forces deliberate
	// scoping over blanket declarations.
	for methodID, row := range file.Methods {
		if len(row.Questions) == 0 || len(row.Dimensions) == 0 || len(row.Policies) == 0 {
			continue
		}
		mean := (meanOf(row.Questions) + meanOf(row.Dimensions) + meanOf(row.Policies)) / 3
		if mean > antiUniversalityCeiling {
			return configErrf(FileCompatibility,
				"method %q claims universal compatibility: contextual mean %.4f exceeds %.1f",
				methodID, mean, antiUniversalityCeiling)
		}
	}

	store.compatibility = file.Methods
	store.chain = file.Chain
	return nil
}

func meanOf(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, score := range scores {
		sum += score
	}
	return sum / float64(len(scores))
}

type fusionFile struct {
	Version     string             `json:"version"`
	Linear      map[string]float64 `json:"linear"`
	Interaction map[string]float64 `json:"interaction"`
}

func (l *loader) loadWeights(store *Store) error {
	var file fusionFile
	if err := l.readFile(FileWeights, &file); err != nil {
		return err
	}
	if len(file.Linear) == 0 {
		return configErr(FileWeights, "missing linear weights")
	}

	weights := FusionWeights{
		Version:     file.Version,
		Linear:      make(map[domain.LayerID]float64, len(file.Linear)),
		Interaction: make(map[domain.LayerPair]float64, len(file.Interaction)),
	}
	if weights.Version == "" {
		weights.Version = DefaultFormulaVersion
	}

	for name, weight := range file.Linear {
		layerID, err := domain.ParseLayerID(name)
		if err != nil {
			return configErrf(FileWeights, "linear weight for unknown layer %q", name)
		}
		if weight < 0 {
			return configErrf(FileWeights, "negative linear weight %.4f for layer %s", weight, layerID)
		}
		weights.Linear[layerID] = weight
	}

	for name, weight := range file.Interaction {
		pair, err := domain.ParseLayerPair(name)
		if err != nil {
			return configWrap(FileWeights, fmt.Sprintf("interaction pair %q", name), err)
		}
		if weight < 0 {
			return configErrf(FileWeights, "negative interaction weight %.4f for pair %s", weight, pair)
		}
		if _, exists := weights.Interaction[pair]; exists {
			// "A,B" and "B,A" canonicalize to the same pair; two file
			// entries for one pair is a config mistake, not an override.
			return configErrf(FileWeights, "duplicate interaction pair %s", pair)
		}
		weights.Interaction[pair] = weight
	}

	linearSum := weights.LinearSum()
	interactionSum := weights.InteractionSum()

	if diff := math.Abs(linearSum + interactionSum - 1); diff > weightSumTolerance {
		return configErrf(FileWeights,
			"weights must normalize to 1: linear %.6f + interaction %.6f = %.6f",
			linearSum, interactionSum, linearSum+interactionSum)
	}

	bound := math.Min(linearSum, 1.0) * 0.5
	if interactionSum > bound+weightSumTolerance {
		return configErrf(FileWeights,
			"interaction sum %.6f exceeds bound %.6f", interactionSum, bound)
	}

	store.weights = weights
	return nil
}

func (l *loader) loadMonolith(store *Store) error {
	var monolith Monolith
	if err := l.readFile(FileMonolith, &monolith); err != nil {
		return err
	}
	if monolith.Questions == nil && monolith.Dimensions == nil {
		return configErr(FileMonolith, "missing questions and dimensions objects")
	}
	store.monolith = monolith
	return nil
}

type governanceFile struct {
	CatalogVersion string                   `json:"catalog_version"`
	SignatureJWS   string                   `json:"signature_jws,omitempty"`
	Methods        map[string]GovernanceRow `json:"methods"`
}

// catalogClaims is the payload of the governance catalog's compact JWS.
type catalogClaims struct {
	CatalogVersion string `json:"catalog_version"`
	jwt.RegisteredClaims
}

func (l *loader) loadGovernance(store *Store) error {
	var file governanceFile
	if err := l.readFile(FileGovernance, &file); err != nil {
		return err
	}
	if file.Methods == nil {
		return configErr(FileGovernance, "missing methods object")
	}

	if len(l.governanceKey) > 0 {
		if err := l.verifyCatalogSignature(file); err != nil {
			return err
		}
	}

	store.governance = file.Methods
	store.catalogVersion = file.CatalogVersion
	return nil
}

// verifyCatalogSignature fails closed: with a key configured the catalog
// must carry a valid HS256 JWS whose catalog_version claim matches.
func (l *loader) verifyCatalogSignature(file governanceFile) error {
	if file.SignatureJWS == "" {
		return configErr(FileGovernance, "governance key configured but catalog carries no signature_jws")
	}

	parsed, err := jwt.ParseWithClaims(file.SignatureJWS, &catalogClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return l.governanceKey, nil
	})
	if err != nil {
		return configWrap(FileGovernance, "invalid catalog signature", err)
	}
	if !parsed.Valid {
		return configErr(FileGovernance, "invalid catalog signature")
	}

	claims, ok := parsed.Claims.(*catalogClaims)
	if !ok {
		return configErr(FileGovernance, "invalid catalog signature claims")
	}
	if claims.CatalogVersion != file.CatalogVersion {
		return configErrf(FileGovernance,
			"catalog signature covers version %q, file declares %q",
			claims.CatalogVersion, file.CatalogVersion)
	}
	return nil
}
