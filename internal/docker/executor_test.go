package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgsList(t *testing.T) {
	opts := BuildOptions{
		Dockerfile: "Dockerfile",
		Tag:        "flux-worker:abc1234",
		BuildArgs: map[string]string{
			"BAKERY_MODEL_LOCK": "deadbeef",
		},
		Labels: map[string]string{
			"bakery.worker":      "flux-worker",
			"bakery.lock-digest": "deadbeef",
		},
		NoCache: true,
		Pull:    true,
	}

	assert.Equal(t, []string{
		"build",
		"-f", "Dockerfile",
		"-t", "flux-worker:abc1234",
		"--build-arg", "BAKERY_MODEL_LOCK=deadbeef",
		"--label", "bakery.lock-digest=deadbeef",
		"--label", "bakery.worker=flux-worker",
		"--no-cache",
		"--pull",
		".",
	}, BuildArgsList(opts))
}

func TestBuildArgsListMinimal(t *testing.T) {
	assert.Equal(t, []string{"build", "."}, BuildArgsList(BuildOptions{}))
}

func TestBuildArgsListDeterministic(t *testing.T) {
	opts := BuildOptions{
		BuildArgs: map[string]string{"C": "3", "A": "1", "B": "2"},
	}

	first := BuildArgsList(opts)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, BuildArgsList(opts))
	}
}

func TestRunArgsList(t *testing.T) {
	opts := RunOptions{
		Tag:  "flux-worker:dev",
		GPUs: "all",
		Name: "flux-worker",
		Env: map[string]string{
			"RUNPOD_DEBUG": "1",
			"HF_TOKEN":     "secret",
		},
	}

	assert.Equal(t, []string{
		"run", "--rm",
		"--name", "flux-worker",
		"--gpus", "all",
		"-e", "HF_TOKEN=secret",
		"-e", "RUNPOD_DEBUG=1",
		"flux-worker:dev",
	}, RunArgsList(opts))
}

func TestParseHistory(t *testing.T) {
	output := "CMD [\"python\" \"-u\" \"handler.py\"]\t0B\n" +
		"COPY handler.py /app/handler.py\t2.1kB\n" +
		"RUN pip install --prefer-binary --no-cache-dir -r requirements.txt\t4.2GB\n"

	layers := ParseHistory(output)
	assert.Len(t, layers, 3)
	assert.Equal(t, "CMD [\"python\" \"-u\" \"handler.py\"]", layers[0].CreatedBy)
	assert.Equal(t, "0B", layers[0].Size)
	assert.Equal(t, "4.2GB", layers[2].Size)
}

func TestLayerInstruction(t *testing.T) {
	tests := []struct {
		createdBy string
		want      string
	}{
		{`/bin/sh -c #(nop) COPY handler.py /app/handler.py`, "COPY handler.py /app/handler.py"},
		{`/bin/sh -c pip install --prefer-binary --no-cache-dir -r requirements.txt`, "pip install --prefer-binary --no-cache-dir -r requirements.txt"},
		{`RUN pip install -r requirements.txt`, "RUN pip install -r requirements.txt"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Layer{CreatedBy: tt.createdBy}.Instruction())
	}
}

func TestParseHistoryEmpty(t *testing.T) {
	assert.Empty(t, ParseHistory(""))
	assert.Empty(t, ParseHistory("\n\n"))
}
