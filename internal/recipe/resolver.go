package recipe

import (
	"fmt"
	"sort"
	"strings"
)

// Supported accelerator runtime versions. The list is curated: a triple that
// is not listed here resolves to nothing and the build fails loudly rather
// than guessing a tag that may not exist upstream.
var supportedCUDA = map[string]bool{
	"11.8.0": true,
	"12.1.0": true,
	"12.1.1": true,
	"12.4.1": true,
}

var supportedPython = map[string]bool{
	"3.10": true,
	"3.11": true,
}

var supportedOS = map[string]bool{
	"20.04": true,
	"22.04": true,
}

// osDefaultPython maps an Ubuntu release to the interpreter it ships. Plain
// CUDA base images carry the distribution interpreter, so the triple only
// resolves when the requested python matches it.
var osDefaultPython = map[string]string{
	"20.04": "3.8",
	"22.04": "3.10",
}

// ResolveBase resolves a runtime triple to a pinned base image tag.
//
// With a torch version set, the triple maps onto the runpod/pytorch image
// family, which pins torch, python, CUDA and OS in a single tag. Without one
// it maps onto nvidia/cuda, which pins the interpreter only through the OS
// release.
func ResolveBase(rt *RuntimeSpec) (string, error) {
	if rt.CUDA == "" || rt.Python == "" || rt.OS == "" {
		return "", fmt.Errorf("image.runtime requires cuda, python and os to be set")
	}

	if !supportedCUDA[rt.CUDA] {
		return "", fmt.Errorf("unsupported CUDA version %q (supported: %s)", rt.CUDA, keysOf(supportedCUDA))
	}
	if !supportedPython[rt.Python] {
		return "", fmt.Errorf("unsupported python version %q (supported: %s)", rt.Python, keysOf(supportedPython))
	}
	if !supportedOS[rt.OS] {
		return "", fmt.Errorf("unsupported OS release %q (supported: %s)", rt.OS, keysOf(supportedOS))
	}

	flavor := rt.Flavor
	if flavor == "" {
		flavor = "runtime"
	}
	if flavor != "runtime" && flavor != "devel" {
		return "", fmt.Errorf("unsupported image flavor %q (supported: runtime, devel)", flavor)
	}

	if rt.Torch != "" {
		return fmt.Sprintf("runpod/pytorch:%s-py%s-cuda%s-%s-ubuntu%s",
			rt.Torch, rt.Python, rt.CUDA, flavor, rt.OS), nil
	}

	if osDefaultPython[rt.OS] != rt.Python {
		return "", fmt.Errorf("ubuntu %s ships python %s, not %s; set image.runtime.torch or pin image.base explicitly",
			rt.OS, osDefaultPython[rt.OS], rt.Python)
	}

	return fmt.Sprintf("nvidia/cuda:%s-cudnn8-%s-ubuntu%s", rt.CUDA, flavor, rt.OS), nil
}

func keysOf(m map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
