package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadVMDataset(t *testing.T) {
	dataset, err := LoadVMDataset()
	require.NoError(t, err)
	require.NotEmpty(t, dataset)

	providers := map[string]bool{}
	for _, vm := range dataset {
		assert.NotEmpty(t, vm.InstanceName)
		assert.Greater(t, vm.VCPUs, 0)
		assert.Greater(t, vm.MemoryGB, 0.0)
		assert.Greater(t, vm.HourlyCost, 0.0)
		providers[vm.Provider] = true
	}
	assert.True(t, providers["AWS"])
	assert.True(t, providers["GCP"])
	assert.True(t, providers["Azure"])
}

func testDataset() []VMInstance {
	return []VMInstance{
		{InstanceName: "small-a", Provider: "AWS", Region: "us-east-1", VCPUs: 2, MemoryGB: 4, HourlyCost: 0.05},
		{InstanceName: "medium-a", Provider: "AWS", Region: "us-east-1", VCPUs: 4, MemoryGB: 16, HourlyCost: 0.20},
		{InstanceName: "large-a", Provider: "AWS", Region: "eu-west-1", VCPUs: 16, MemoryGB: 64, HourlyCost: 0.80},
		{InstanceName: "small-g", Provider: "GCP", Region: "us-central1", VCPUs: 2, MemoryGB: 8, HourlyCost: 0.06},
		{InstanceName: "big-g", Provider: "GCP", Region: "us-central1", VCPUs: 8, MemoryGB: 32, HourlyCost: 0.40},
		{InstanceName: "tiny-z", Provider: "Azure", Region: "eastus", VCPUs: 1, MemoryGB: 2, HourlyCost: 0.02},
	}
}

func TestRecommendVMsFiltersUndersized(t *testing.T) {
	// needs ~2 buffered cores and ~5 buffered GB: tiny-z must never appear
	recs := RecommendVMs(testDataset(), 40, 4, 4, "")
	require.NotEmpty(t, recs)
	for _, rec := range recs {
		assert.NotEqual(t, "tiny-z", rec.Instance.InstanceName)
		assert.GreaterOrEqual(t, float64(rec.Instance.VCPUs), 1.6*1.25)
	}
}

func TestRecommendVMsSortedByScore(t *testing.T) {
	recs := RecommendVMs(testDataset(), 10, 2, 1, "")
	require.True(t, len(recs) >= 2)
	for i := 1; i < len(recs); i++ {
		assert.LessOrEqual(t, recs[i-1].CostPerNeededResource, recs[i].CostPerNeededResource)
	}
}

func TestRecommendVMsCapsPerProvider(t *testing.T) {
	dataset := testDataset()
	// add a third AWS machine that also fits everything
	dataset = append(dataset, VMInstance{
		InstanceName: "huge-a", Provider: "AWS", Region: "us-east-1",
		VCPUs: 32, MemoryGB: 128, HourlyCost: 1.50,
	})

	recs := RecommendVMs(dataset, 10, 2, 1, "")
	counts := map[string]int{}
	for _, rec := range recs {
		counts[rec.Instance.Provider]++
	}
	for provider, n := range counts {
		assert.LessOrEqual(t, n, 2, "provider %s over cap", provider)
	}
}

func TestRecommendVMsRegionPreference(t *testing.T) {
	recs := RecommendVMs(testDataset(), 10, 2, 1, "us-east")
	require.NotEmpty(t, recs)
	for _, rec := range recs {
		assert.Contains(t, rec.Instance.Region, "us-east")
	}
}

func TestRecommendVMsIdleUsageStillGetsFloor(t *testing.T) {
	// near-zero usage clamps to 1 core / 2 GB, so 1.25x buffered needs
	// rule out anything under 2 vcpus or 2.5 GB
	recs := RecommendVMs(testDataset(), 0.1, 8, 0.1, "")
	require.NotEmpty(t, recs)
	for _, rec := range recs {
		assert.GreaterOrEqual(t, rec.Instance.VCPUs, 2)
		assert.GreaterOrEqual(t, rec.Instance.MemoryGB, 2.5)
	}
}

func TestRecommendVMsNothingFits(t *testing.T) {
	recs := RecommendVMs(testDataset(), 95, 64, 500, "")
	assert.Nil(t, recs)
}
