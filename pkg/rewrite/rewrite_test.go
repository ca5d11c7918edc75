package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/pyast"
)

const source = `import os
import numpy
import numpy.linalg
import pandas as pd
from requests import get
from mypkg.sub import thing
from . import sibling
import mypkg.core

def f(x: "numpy.ndarray") -> "numpy.linalg.Norm":
    return numpy.linalg.norm(numpy.array(x)), pd.DataFrame(), os.getcwd()
`

const want = `import os
import mypkg._vendor.numpy
import mypkg._vendor.numpy.linalg
import mypkg._vendor.pandas as pd
from mypkg._vendor.requests import get
from mypkg.sub import thing
from . import sibling
import mypkg.core

def f(x: "mypkg._vendor.numpy.ndarray") -> "mypkg._vendor.numpy.linalg.Norm":
    return mypkg._vendor.numpy.linalg.norm(mypkg._vendor.numpy.array(x)), pd.DataFrame(), os.getcwd()
`

func TestRewriteImports(t *testing.T) {
	got, err := RewriteImports(source, "mypkg", "_vendor")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	again, err := RewriteImports(got, "mypkg", "_vendor")
	require.NoError(t, err)
	assert.Equal(t, got, again, "vendored imports are first-party")
}

func TestRewriteLongestAffectedPrefix(t *testing.T) {
	got, err := RewriteImports("import a.b\nimport a.b.c\nx = a.b.c.d\ny = a.b\n", "top", "v")
	require.NoError(t, err)
	assert.Equal(t, "import top.v.a.b\nimport top.v.a.b.c\nx = top.v.a.b.c.d\ny = top.v.a.b\n", got)
}

func TestRewriteDottedImportBindsTopLevel(t *testing.T) {
	src := "import numpy.linalg\nx = numpy.array([1])\ny: \"numpy.ndarray\" = x\n"
	got, err := RewriteImports(src, "app", "_vendor")
	require.NoError(t, err)
	assert.Equal(t, "import app._vendor.numpy.linalg\nx = app._vendor.numpy.array([1])\ny: \"app._vendor.numpy.ndarray\" = x\n", got)
}

func TestRewriteNestedScopes(t *testing.T) {
	src := "def g():\n    import yaml\n    return yaml.safe_load('')\n"
	got, err := RewriteImports(src, "app", "_vendor")
	require.NoError(t, err)
	assert.Equal(t, "def g():\n    import app._vendor.yaml\n    return app._vendor.yaml.safe_load('')\n", got)
}

func TestRewriteLeavesUnaffectedNames(t *testing.T) {
	src := "import requests as r\nrequests = 1\nr.get(requests)\n"
	got, err := RewriteImports(src, "app", "_vendor")
	require.NoError(t, err)
	assert.Equal(t, "import app._vendor.requests as r\nrequests = 1\nr.get(requests)\n", got)
}

func TestRewriteSyntaxError(t *testing.T) {
	_, err := RewriteImports("def broken(:\n", "app", "_vendor")
	assert.ErrorIs(t, err, pyast.ErrSyntax)
}

func TestVendored(t *testing.T) {
	r := New("mypkg", "_vendor", modspec.NewClassifier("3.12"))
	tests := map[string]bool{
		"":           false,
		"mypkg":      false,
		"mypkg.x":    false,
		"mypkgx":     true,
		"os.path":    false,
		"__future__": false,
		"numpy":      true,
	}
	for spec, want := range tests {
		assert.Equal(t, want, r.Vendored(spec), spec)
	}
}
