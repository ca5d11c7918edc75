package modspec

import (
	"strconv"
	"strings"
)

// DefaultVersion is the Python version assumed when none is configured.
const DefaultVersion = "3.12"

// Classifier decides whether a module belongs to the standard library of a
// given Python 3 minor version.
type Classifier struct {
	minor int
}

// NewClassifier returns a classifier for a version token such as "3.11".
// Unparseable tokens fall back to DefaultVersion.
func NewClassifier(version string) *Classifier {
	minor, ok := parseMinor(version)
	if !ok {
		minor, _ = parseMinor(DefaultVersion)
	}
	return &Classifier{minor: minor}
}

func parseMinor(version string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(version), ".")
	if len(parts) < 2 || parts[0] != "3" {
		return 0, false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return minor, true
}

// IsStdLib reports whether the top-level package of spec is a standard
// library module (or the __future__ pseudo-module).
func (c *Classifier) IsStdLib(spec string) bool {
	top := TopLevelPackage(spec)
	if _, ok := stdlibModules[top]; ok {
		return true
	}
	if r, ok := versionedModules[top]; ok {
		return c.minor >= r.added && (r.removed == 0 || c.minor < r.removed)
	}
	return false
}

var defaultClassifier = NewClassifier(DefaultVersion)

// IsStdLib classifies spec against DefaultVersion.
func IsStdLib(spec string) bool {
	return defaultClassifier.IsStdLib(spec)
}

// IsBuiltinName reports whether name is a Python builtin.
func IsBuiltinName(name string) bool {
	_, ok := builtinNames[name]
	return ok
}

type minorRange struct {
	added   int
	removed int
}

// versionedModules lists modules added or removed within 3.8..3.13.
var versionedModules = map[string]minorRange{
	"_dummy_thread":   {added: 0, removed: 9},
	"dummy_threading": {added: 0, removed: 9},
	"formatter":       {added: 0, removed: 10},
	"parser":          {added: 0, removed: 10},
	"symbol":          {added: 0, removed: 10},
	"binhex":          {added: 0, removed: 11},
	"asynchat":        {added: 0, removed: 12},
	"asyncore":        {added: 0, removed: 12},
	"distutils":       {added: 0, removed: 12},
	"imp":             {added: 0, removed: 12},
	"smtpd":           {added: 0, removed: 12},
	"aifc":            {added: 0, removed: 13},
	"audioop":         {added: 0, removed: 13},
	"cgi":             {added: 0, removed: 13},
	"cgitb":           {added: 0, removed: 13},
	"chunk":           {added: 0, removed: 13},
	"crypt":           {added: 0, removed: 13},
	"imghdr":          {added: 0, removed: 13},
	"lib2to3":         {added: 0, removed: 13},
	"mailcap":         {added: 0, removed: 13},
	"msilib":          {added: 0, removed: 13},
	"nis":             {added: 0, removed: 13},
	"nntplib":         {added: 0, removed: 13},
	"ossaudiodev":     {added: 0, removed: 13},
	"pipes":           {added: 0, removed: 13},
	"sndhdr":          {added: 0, removed: 13},
	"spwd":            {added: 0, removed: 13},
	"sunau":           {added: 0, removed: 13},
	"telnetlib":       {added: 0, removed: 13},
	"uu":              {added: 0, removed: 13},
	"xdrlib":          {added: 0, removed: 13},
	"graphlib":        {added: 9},
	"zoneinfo":        {added: 9},
	"tomllib":         {added: 11},
	"_interpreters":   {added: 13},
}

var stdlibModules = toSet(
	"__future__", "__builtin__", "__main__", "_abc", "_ast", "_asyncio", "_bisect",
	"_blake2", "_bz2", "_codecs", "_collections", "_collections_abc", "_compat_pickle",
	"_compression", "_contextvars", "_csv", "_ctypes", "_datetime", "_decimal",
	"_elementtree", "_functools", "_hashlib", "_heapq", "_imp", "_io", "_json",
	"_locale", "_lzma", "_markupbase", "_md5", "_operator", "_osx_support",
	"_pickle", "_posixsubprocess", "_py_abc", "_pydecimal", "_pyio", "_queue",
	"_random", "_sha1", "_sha256", "_sha512", "_signal", "_socket", "_sqlite3",
	"_sre", "_ssl", "_stat", "_string", "_strptime", "_struct", "_symtable",
	"_thread", "_threading_local", "_tracemalloc", "_warnings", "_weakref",
	"_weakrefset", "_winapi", "abc", "argparse", "array", "ast", "asyncio",
	"atexit", "base64", "bdb", "binascii", "bisect", "builtins", "bz2",
	"cProfile", "calendar", "cmath", "cmd", "code", "codecs", "codeop",
	"collections", "colorsys", "compileall", "concurrent", "configparser",
	"contextlib", "contextvars", "copy", "copyreg", "csv", "ctypes", "curses",
	"dataclasses", "datetime", "dbm", "decimal", "difflib", "dis", "doctest",
	"email", "encodings", "ensurepip", "enum", "errno", "faulthandler", "fcntl",
	"filecmp", "fileinput", "fnmatch", "fractions", "ftplib", "functools", "gc",
	"genericpath", "getopt", "getpass", "gettext", "glob", "grp", "gzip",
	"hashlib", "heapq", "hmac", "html", "http", "idlelib", "imaplib",
	"importlib", "inspect", "io", "ipaddress", "itertools", "json", "keyword",
	"linecache", "locale", "logging", "lzma", "mailbox", "marshal", "math",
	"mimetypes", "mmap", "modulefinder", "msvcrt", "multiprocessing", "netrc",
	"nt", "ntpath", "nturl2path", "numbers", "opcode", "operator", "optparse",
	"os", "pathlib", "pdb", "pickle", "pickletools", "pkgutil", "platform",
	"plistlib", "poplib", "posix", "posixpath", "pprint", "profile", "pstats",
	"pty", "pwd", "py_compile", "pyclbr", "pydoc", "pydoc_data", "pyexpat",
	"queue", "quopri", "random", "re", "readline", "reprlib", "resource",
	"rlcompleter", "runpy", "sched", "secrets", "select", "selectors", "shelve",
	"shlex", "shutil", "signal", "site", "smtplib", "socket", "socketserver",
	"sqlite3", "sre_compile", "sre_constants", "sre_parse", "ssl", "stat",
	"statistics", "string", "stringprep", "struct", "subprocess", "symtable",
	"sys", "sysconfig", "syslog", "tabnanny", "tarfile", "tempfile", "termios",
	"textwrap", "this", "threading", "time", "timeit", "tkinter", "token",
	"tokenize", "trace", "traceback", "tracemalloc", "tty", "turtle",
	"turtledemo", "types", "typing", "unicodedata", "unittest", "urllib",
	"uuid", "venv", "warnings", "wave", "weakref", "webbrowser", "winreg",
	"winsound", "wsgiref", "xml", "xmlrpc", "zipapp", "zipfile", "zipimport",
	"zlib",
)

var builtinNames = toSet(
	"abs", "aiter", "all", "anext", "any", "ascii", "bin", "bool", "breakpoint",
	"bytearray", "bytes", "callable", "chr", "classmethod", "compile", "complex",
	"delattr", "dict", "dir", "divmod", "enumerate", "eval", "exec", "filter",
	"float", "format", "frozenset", "getattr", "globals", "hasattr", "hash",
	"help", "hex", "id", "input", "int", "isinstance", "issubclass", "iter",
	"len", "list", "locals", "map", "max", "memoryview", "min", "next", "object",
	"oct", "open", "ord", "pow", "print", "property", "range", "repr",
	"reversed", "round", "set", "setattr", "slice", "sorted", "staticmethod",
	"str", "sum", "super", "tuple", "type", "vars", "zip", "__import__",
)

func toSet(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}
