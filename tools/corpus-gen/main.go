// corpus-gen writes a synthetic corpus for load testing validate-corpus and
// serve. Every record is valid; -faults injects a fraction of broken ones.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/agentic-research/medgraph/api"
	"gopkg.in/yaml.v3"
)

var (
	systems   = []string{"respiratory", "cardiovascular", "renal", "nervous", "endocrine", "digestive", "musculoskeletal"}
	topics    = []string{"anatomy", "physiology", "pathology", "pharmacology", "diagnosis", "treatment"}
	relevance = []api.ClinicalRelevance{api.RelevanceLow, api.RelevanceModerate, api.RelevanceHigh, api.RelevanceCritical}
	types     = []api.RecordType{api.TypeConcept, api.TypeCondition, api.TypeSystem}
	faults    = []string{"dangling", "asymmetric", "level-mismatch", "duplicate"}
)

func main() {
	n := flag.Int("n", 1000, "Number of records")
	outDir := flag.String("out", "corpus", "Output directory")
	links := flag.Int("links", 3, "Related links per record")
	faultRate := flag.Float64("faults", 0, "Fraction of records with an injected fault (0-1)")
	format := flag.String("format", "json", "File format: json, yaml or bundle")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	if *n < 1 || *faultRate < 0 || *faultRate > 1 {
		flag.Usage()
		os.Exit(1)
	}
	rng := rand.New(rand.NewSource(*seed))

	recs := make([]*api.ContentRecord, *n)
	for i := range recs {
		recs[i] = record(i, rng)
	}
	// related links are written in both directions so a clean corpus has no
	// asymmetry findings
	for i, r := range recs {
		for range *links {
			j := rng.Intn(*n)
			if j == i {
				continue
			}
			link(r, recs[j].ID, api.RelRelated)
			link(recs[j], r.ID, api.RelRelated)
		}
		if i > 0 && i%10 == 0 {
			link(r, recs[i-10].ID, api.RelSeeAlso)
		}
	}

	injected := map[string]int{}
	for _, r := range recs {
		if rng.Float64() >= *faultRate {
			continue
		}
		kind := faults[rng.Intn(len(faults))]
		inject(r, kind, recs, rng)
		injected[kind]++
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fatal(err)
	}
	if err := write(*outDir, *format, recs); err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %d records to %s (%s)\n", len(recs), *outDir, *format)
	for _, kind := range faults {
		if injected[kind] > 0 {
			fmt.Printf("  %-15s %d\n", kind, injected[kind])
		}
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func pick[T any](rng *rand.Rand, from []T) T {
	return from[rng.Intn(len(from))]
}

func record(i int, rng *rand.Rand) *api.ContentRecord {
	id := fmt.Sprintf("topic-%05d", i)
	rec := &api.ContentRecord{
		ID:     id,
		Type:   pick(rng, types),
		Name:   fmt.Sprintf("Synthetic topic %d", i),
		Levels: map[int]*api.LevelContent{},
		Tags: api.Tags{
			Systems:           []string{pick(rng, systems)},
			Topics:            []string{pick(rng, topics)},
			Keywords:          []string{fmt.Sprintf("kw-%d", i%97), fmt.Sprintf("kw-%d", i%89)},
			ClinicalRelevance: pick(rng, relevance),
		},
		CreatedAt: "2026-01-01",
		UpdatedAt: fmt.Sprintf("2026-%02d-%02d", 1+rng.Intn(12), 1+rng.Intn(28)),
		Version:   1 + rng.Intn(5),
		Status:    api.StatusPublished,
	}
	levels := 1 + rng.Intn(5)
	for lvl := 1; lvl <= levels; lvl++ {
		rec.Levels[lvl] = &api.LevelContent{
			Level:       lvl,
			Summary:     fmt.Sprintf("Level %d summary of %s.", lvl, id),
			Explanation: fmt.Sprintf("Level %d explanation of %s.", lvl, id),
		}
	}
	if rng.Intn(4) == 0 {
		rec.Tags.ExamRelevance = &api.ExamRelevance{USMLE: true, NBME: rng.Intn(2) == 0}
	}
	return rec
}

func link(r *api.ContentRecord, target string, rel api.Relationship) {
	for _, l := range r.CrossReferences {
		if l.TargetID == target && l.Relationship == rel {
			return
		}
	}
	r.CrossReferences = append(r.CrossReferences, api.CrossReferenceLink{TargetID: target, Relationship: rel})
}

func inject(r *api.ContentRecord, kind string, recs []*api.ContentRecord, rng *rand.Rand) {
	switch kind {
	case "dangling":
		link(r, "missing-"+r.ID, api.RelRelated)
	case "asymmetric":
		other := pick(rng, recs)
		if other.ID != r.ID {
			link(r, other.ID, api.RelSibling)
		}
	case "level-mismatch":
		r.Levels[1].Level = 2
	case "duplicate":
		r.ID = pick(rng, recs).ID
	}
}

func write(dir, format string, recs []*api.ContentRecord) error {
	switch format {
	case "bundle":
		raw, err := json.MarshalIndent(map[string]any{"records": recs}, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, "bundle.json"), raw, 0o644)
	case "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	for i, r := range recs {
		sub := filepath.Join(dir, r.Tags.Systems[0])
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return err
		}
		var (
			raw []byte
			err error
		)
		name := fmt.Sprintf("%05d", i)
		if format == "yaml" {
			raw, err = yaml.Marshal(r)
			name += ".yaml"
		} else {
			raw, err = json.MarshalIndent(r, "", "  ")
			name += ".json"
		}
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(sub, name), raw, 0o644); err != nil {
			return err
		}
	}
	return nil
}
