package dockerfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenworks/bakery-cli/internal/recipe"
)

func testRecipe() *recipe.Recipe {
	r := recipe.New("flux-worker")
	r.Image.Base = "runpod/pytorch:2.1.0-py3.10-cuda11.8.0-devel-ubuntu22.04"
	return r
}

func testRecipeWithModels() *recipe.Recipe {
	r := testRecipe()
	r.Models = []recipe.Model{
		{
			Name:      "kontext",
			Source:    "black-forest-labs/FLUX.1-kontext-dev-fp8",
			TargetDir: "/app/huggingface_cache",
			Files:     []recipe.ModelFile{{Path: "model_index.json"}},
		},
	}
	return r
}

func TestPlanStageOrder(t *testing.T) {
	r := testRecipeWithModels()
	r.Image.SystemPackages = []string{"git"}
	r.Materialize = &recipe.MaterializeSpec{Script: "download_model.py"}

	stages, err := NewGenerator().Plan(r, Options{Script: "download_model.py"})
	require.NoError(t, err)

	kinds := make([]StageKind, 0, len(stages))
	for _, s := range stages {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []StageKind{
		StageBase, StageEnv, StageSystem, StageDeps,
		StageModels, StageHandler, StageCommand,
	}, kinds)
}

func TestPlanOmitsEmptyStages(t *testing.T) {
	stages, err := NewGenerator().Plan(testRecipe(), Options{})
	require.NoError(t, err)

	kinds := make([]StageKind, 0, len(stages))
	for _, s := range stages {
		kinds = append(kinds, s.Kind)
	}
	assert.NotContains(t, kinds, StageSystem)
	assert.NotContains(t, kinds, StageModels)
}

func TestGenerateEnvBeforeAnyRun(t *testing.T) {
	r := testRecipe()
	r.Image.SystemPackages = []string{"ffmpeg", "git"}

	out, err := NewGenerator().Generate(r, Options{})
	require.NoError(t, err)

	env := strings.Index(out, "ENV DEBIAN_FRONTEND=noninteractive")
	run := strings.Index(out, "RUN ")
	require.GreaterOrEqual(t, env, 0)
	require.GreaterOrEqual(t, run, 0)
	assert.Less(t, env, run, "environment must be set before any RUN executes")

	assert.Contains(t, out, "TZ="+recipe.DefaultTimezone)
}

func TestGenerateUserEnvSortedAndQuoted(t *testing.T) {
	r := testRecipe()
	r.Image.Env = map[string]string{
		"HF_HOME":             "/app/huggingface_cache",
		"CUDA_MODULE_LOADING": "LAZY",
	}

	out, err := NewGenerator().Generate(r, Options{})
	require.NoError(t, err)

	a := strings.Index(out, `CUDA_MODULE_LOADING="LAZY"`)
	b := strings.Index(out, `HF_HOME="/app/huggingface_cache"`)
	require.GreaterOrEqual(t, a, 0)
	require.GreaterOrEqual(t, b, 0)
	assert.Less(t, a, b)
}

func TestGeneratePipFlags(t *testing.T) {
	out, err := NewGenerator().Generate(testRecipe(), Options{})
	require.NoError(t, err)

	assert.Contains(t, out, "COPY requirements.txt /app/requirements.txt")
	assert.Contains(t, out, "RUN pip install --prefer-binary --no-cache-dir -r requirements.txt")
}

func TestGenerateSystemPackagesSortedSingleLayer(t *testing.T) {
	r := testRecipe()
	r.Image.SystemPackages = []string{"libgl1", "ffmpeg"}

	out, err := NewGenerator().Generate(r, Options{})
	require.NoError(t, err)

	assert.Contains(t, out, "--no-install-recommends ffmpeg libgl1")
	assert.Contains(t, out, "rm -rf /var/lib/apt/lists/*")
	assert.Equal(t, 1, strings.Count(out, "apt-get update"))
}

func TestGenerateHandlerCopyIsLastLayer(t *testing.T) {
	out, err := NewGenerator().Generate(testRecipeWithModels(), Options{ModelCacheDir: ".bakery/models"})
	require.NoError(t, err)

	handler := strings.LastIndex(out, "COPY handler.py /app/handler.py")
	require.GreaterOrEqual(t, handler, 0)

	// No filesystem-mutating instruction may follow the handler copy.
	tail := out[handler+len("COPY handler.py /app/handler.py"):]
	assert.NotContains(t, tail, "COPY ")
	assert.NotContains(t, tail, "RUN ")
	assert.Contains(t, tail, "CMD ")
}

func TestGenerateCommandExecFormUnbuffered(t *testing.T) {
	out, err := NewGenerator().Generate(testRecipe(), Options{})
	require.NoError(t, err)
	assert.Contains(t, out, `CMD ["python", "-u", "handler.py"]`)
}

func TestGenerateScriptModeCarriesLockDigest(t *testing.T) {
	r := testRecipeWithModels()
	r.Materialize = &recipe.MaterializeSpec{Script: "download_model.py"}

	out, err := NewGenerator().Generate(r, Options{
		Script:     "download_model.py",
		LockDigest: "deadbeef",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "COPY download_model.py /app/download_model.py")
	assert.Contains(t, out, "ARG BAKERY_MODEL_LOCK=deadbeef")
	assert.Contains(t, out, "RUN python -u download_model.py")

	copyIdx := strings.Index(out, "COPY download_model.py")
	argIdx := strings.Index(out, "ARG BAKERY_MODEL_LOCK")
	runIdx := strings.Index(out, "RUN python -u download_model.py")
	assert.Less(t, copyIdx, argIdx)
	assert.Less(t, argIdx, runIdx, "digest arg must precede the download so it keys the layer cache")
}

func TestGenerateScriptModeUnlockedDefault(t *testing.T) {
	r := testRecipeWithModels()
	r.Materialize = &recipe.MaterializeSpec{Script: "download_model.py"}

	out, err := NewGenerator().Generate(r, Options{Script: "download_model.py"})
	require.NoError(t, err)
	assert.Contains(t, out, "ARG BAKERY_MODEL_LOCK=unlocked")
}

func TestGenerateCacheModeCopiesModelDirs(t *testing.T) {
	out, err := NewGenerator().Generate(testRecipeWithModels(), Options{ModelCacheDir: ".bakery/models"})
	require.NoError(t, err)
	assert.Contains(t, out, "COPY .bakery/models/kontext/ /app/huggingface_cache/")
}

func TestGenerateCacheModeRequiresCacheDir(t *testing.T) {
	_, err := NewGenerator().Generate(testRecipeWithModels(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model cache dir is required")
}

func TestGenerateDeterministic(t *testing.T) {
	r := testRecipeWithModels()
	r.Image.Env = map[string]string{"A": "1", "B": "2", "C": "3"}
	r.Image.SystemPackages = []string{"git", "ffmpeg", "libgl1"}
	opts := Options{ModelCacheDir: ".bakery/models", LockDigest: "deadbeef"}

	first, err := NewGenerator().Generate(r, opts)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		out, err := NewGenerator().Generate(r, opts)
		require.NoError(t, err)
		require.Equal(t, first, out, "rendering must be byte-identical for identical input")
	}
}

func TestGenerateBaseImageResolutionFailure(t *testing.T) {
	r := testRecipe()
	r.Image.Base = ""
	r.Image.Runtime = nil

	_, err := NewGenerator().Generate(r, Options{})
	assert.Error(t, err)
}

func TestCheckOrderRejectsOutOfOrder(t *testing.T) {
	err := checkOrder([]Stage{{Kind: StageDeps}, {Kind: StageEnv}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")
}

func TestCheckOrderRejectsDuplicates(t *testing.T) {
	err := checkOrder([]Stage{{Kind: StageBase}, {Kind: StageBase}})
	assert.Error(t, err)
}
