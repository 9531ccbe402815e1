package agent

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

//go:embed instances.csv
var instancesCSV string

type VMInstance struct {
	InstanceName string
	Provider     string
	Region       string
	VCPUs        int
	MemoryGB     float64
	HourlyCost   float64
}

type Recommendation struct {
	Instance VMInstance
	// hourly cost divided by the buffered resource need; lower is better
	CostPerNeededResource float64
}

// LoadVMDataset parses the embedded instance catalog.
func LoadVMDataset() ([]VMInstance, error) {
	r := csv.NewReader(strings.NewReader(instancesCSV))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("instance dataset is empty")
	}

	out := make([]VMInstance, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != 6 {
			return nil, fmt.Errorf("instance dataset row %d: expected 6 fields, got %d", i+2, len(row))
		}
		vcpus, err := strconv.Atoi(row[3])
		if err != nil {
			return nil, fmt.Errorf("instance dataset row %d vcpus: %w", i+2, err)
		}
		memGB, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return nil, fmt.Errorf("instance dataset row %d memory_gb: %w", i+2, err)
		}
		cost, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return nil, fmt.Errorf("instance dataset row %d hourly_cost: %w", i+2, err)
		}
		out = append(out, VMInstance{
			InstanceName: row[0],
			Provider:     row[1],
			Region:       row[2],
			VCPUs:        vcpus,
			MemoryGB:     memGB,
			HourlyCost:   cost,
		})
	}
	return out, nil
}

const (
	resourceBuffer  = 1.25 // 25% headroom over measured usage
	maxPerProvider  = 2
	minNeededCores  = 1.0
	minNeededMemory = 2.0 // GB; idle boxes still need somewhere to live
)

// RecommendVMs filters the catalog to instances that fit the measured usage
// with headroom, scores them by hourly cost per buffered resource unit, and
// returns the cheapest few per provider, best first.
func RecommendVMs(dataset []VMInstance, avgCPUPercent float64, physicalCores int, avgMemUsedGB float64, regionPref string) []Recommendation {
	neededCores := float64(physicalCores) * (avgCPUPercent / 100.0)
	if neededCores < minNeededCores {
		neededCores = minNeededCores
	}
	neededMemGB := avgMemUsedGB
	if neededMemGB < minNeededMemory {
		neededMemGB = minNeededMemory
	}

	var candidates []Recommendation
	totalNeeded := neededCores*resourceBuffer + neededMemGB*resourceBuffer
	for _, vm := range dataset {
		if float64(vm.VCPUs) < neededCores*resourceBuffer {
			continue
		}
		if vm.MemoryGB < neededMemGB*resourceBuffer {
			continue
		}
		if regionPref != "" && !strings.Contains(strings.ToLower(vm.Region), strings.ToLower(regionPref)) {
			continue
		}
		candidates = append(candidates, Recommendation{
			Instance:              vm,
			CostPerNeededResource: vm.HourlyCost / totalNeeded,
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CostPerNeededResource < candidates[j].CostPerNeededResource
	})

	perProvider := map[string]int{}
	var out []Recommendation
	for _, rec := range candidates {
		if perProvider[rec.Instance.Provider] >= maxPerProvider {
			continue
		}
		perProvider[rec.Instance.Provider]++
		out = append(out, rec)
	}
	return out
}
