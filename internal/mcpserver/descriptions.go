package mcpserver

// Tool descriptions with interpretation guidance for LLMs.

func describeCollectModules() string {
	return `Finds every Python file an entry module imports, directly or transitively, including literal dynamic imports (importlib.import_module, __import__).

USE WHEN:
- Checking which third-party packages a module really pulls in
- Planning a vendored bundle of a package
- Looking for import cycles between modules of a package

INTERPRETING RESULTS:
- Standard-library modules are never listed
- opaque files (native extensions, unreadable files) are recorded but not followed
- A module missing from the list could not be resolved on the search paths
- cycles lists groups of modules importing each other; load_order puts imported modules first

METRICS RETURNED:
- files: module name, path and opaque flag per collected file
- edges: importer/imported module pairs
- summary: module and import counts, components, cycles`
}

func describeRewriteImports() string {
	return `Rewrites the imports of a Python source so third-party modules are loaded from a vendored namespace inside the top-level package.

USE WHEN:
- Previewing how a module looks once its dependencies are vendored
- Moving a single file into a bundled package by hand

INTERPRETING RESULTS:
- "import requests" becomes "import <top>.<vendor>.requests" and later uses of requests are rerouted
- Standard-library, first-party and relative imports are unchanged
- String annotations naming vendored modules are rewritten too
- Everything else in the source is byte-for-byte identical

METRICS RETURNED:
- source: the rewritten source`
}

func describeTreeshakePreview() string {
	return `Runs a dry-run tree shake over a directory of Python modules: counts references until a fixed point, then reports what would be removed without touching any file.

USE WHEN:
- Estimating how much dead code a package carries
- Checking that an entry module or preserved symbol keeps the code you expect
- Reviewing removals before running the real tree shake

INTERPRETING RESULTS:
- __main__.py files and configured entry modules are always kept whole
- deleted: modules with nothing referenced would be removed
- truncated: a package __init__.py left alone in its directory would be emptied but kept
- rewritten: modules losing some statements
- unparsed files are left unchanged and do not contribute references

METRICS RETURNED:
- sweeps: new references found by each counting pass
- summary.removed: removed statements by kind (function, class, assign, import, import_alias, ...)
- summary.results: per-module action
- references: number of referenced names`
}
