package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, src string) *Interp {
	t.Helper()
	it := New()
	prog, err := Compile(src)
	require.NoError(t, err)
	require.NoError(t, it.Run(prog))
	return it
}

func runErr(t *testing.T, src string) error {
	t.Helper()
	it := New()
	prog, err := Compile(src)
	require.NoError(t, err)
	err = it.Run(prog)
	require.Error(t, err)
	return err
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want Value
	}{
		{"x = 1 + 1", int64(2)},
		{"x = 7 - 2 * 3", int64(1)},
		{"x = 2 ** 10", int64(1024)},
		{"x = 7 / 2", 3.5},
		{"x = 7 // 2", int64(3)},
		{"x = -7 // 2", int64(-4)},
		{"x = 7 % 3", int64(1)},
		{"x = -7 % 3", int64(2)},
		{"x = 1.5 + 1", 2.5},
		{"x = -3", int64(-3)},
		{"x = 'ab' + 'cd'", "abcd"},
		{"x = 'ab' * 3", "ababab"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			it := run(t, tt.src)
			assert.Equal(t, tt.want, it.Locals["x"])
		})
	}
}

func TestZeroDivision(t *testing.T) {
	err := runErr(t, "x = 1 / 0")
	r := AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassZeroDivision, r.Class)
}

func TestComparisonsAndBoolOps(t *testing.T) {
	tests := []struct {
		src  string
		want Value
	}{
		{"x = 1 < 2 < 3", true},
		{"x = 1 < 2 > 5", false},
		{"x = 'a' in 'cat'", true},
		{"x = 3 not in [1, 2]", true},
		{"x = None is None", true},
		{"x = 0 or 'fallback'", "fallback"},
		{"x = 'first' and 'second'", "second"},
		{"x = not []", true},
		{"x = 1 if 2 > 1 else 0", int64(1)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			it := run(t, tt.src)
			assert.Equal(t, tt.want, it.Locals["x"])
		})
	}
}

func TestContainers(t *testing.T) {
	it := run(t, `
nums = [3, 1, 2]
nums.append(4)
nums.sort()
first = nums[0]
last = nums[-1]
sliced = nums[1:3]
rev = nums[::-1]
d = {'a': 1}
d['b'] = 2
keys = sorted(d.keys())
missing = d.get('zzz', 99)
s = {1, 2}
s.add(3)
pair = (10, 20)
a, b = pair
`)
	nums := it.Locals["nums"].(*List)
	assert.Equal(t, []Value{int64(1), int64(2), int64(3), int64(4)}, nums.Items)
	assert.Equal(t, int64(1), it.Locals["first"])
	assert.Equal(t, int64(4), it.Locals["last"])
	assert.Equal(t, []Value{int64(2), int64(3)}, it.Locals["sliced"].(*List).Items)
	assert.Equal(t, []Value{int64(4), int64(3), int64(2), int64(1)}, it.Locals["rev"].(*List).Items)
	assert.Equal(t, []Value{"a", "b"}, it.Locals["keys"].(*List).Items)
	assert.Equal(t, int64(99), it.Locals["missing"])
	assert.Equal(t, 3, it.Locals["s"].(*Set).Size())
	assert.Equal(t, int64(10), it.Locals["a"])
	assert.Equal(t, int64(20), it.Locals["b"])
}

func TestStringMethods(t *testing.T) {
	it := run(t, `
up = 'abc'.upper()
parts = 'a-b-c'.split('-')
joined = ', '.join(['x', 'y'])
stripped = '  pad  '.strip()
starts = 'hello'.startswith('he')
formatted = '{} and {}'.format(1, 'two')
named = '{name}!'.format(name='bob')
pct = '%s=%d' % ('n', 42)
`)
	assert.Equal(t, "ABC", it.Locals["up"])
	assert.Equal(t, []Value{"a", "b", "c"}, it.Locals["parts"].(*List).Items)
	assert.Equal(t, "x, y", it.Locals["joined"])
	assert.Equal(t, "pad", it.Locals["stripped"])
	assert.Equal(t, true, it.Locals["starts"])
	assert.Equal(t, "1 and two", it.Locals["formatted"])
	assert.Equal(t, "bob!", it.Locals["named"])
	assert.Equal(t, "n=42", it.Locals["pct"])
}

func TestControlFlow(t *testing.T) {
	it := run(t, `
total = 0
for i in range(10):
    if i % 2 == 0:
        continue
    if i > 7:
        break
    total = total + i

n = 0
while n < 5:
    n = n + 1

grade = 'low'
score = 85
if score > 90:
    grade = 'high'
elif score > 80:
    grade = 'mid'
else:
    grade = 'low'
`)
	assert.Equal(t, int64(1+3+5+7), it.Locals["total"])
	assert.Equal(t, int64(5), it.Locals["n"])
	assert.Equal(t, "mid", it.Locals["grade"])
}

func TestFunctionsAndLambdas(t *testing.T) {
	it := run(t, `
def greet(name, punct='!'):
    return 'hi ' + name + punct

a = greet('bob')
b = greet('ann', punct='?')

def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)

f = fib(10)
double = lambda x: x * 2
d = double(21)
squares = [i * i for i in range(4)]
evens = [i for i in range(6) if i % 2 == 0]
mapped = list(map(lambda v: v + 1, [1, 2]))
`)
	assert.Equal(t, "hi bob!", it.Locals["a"])
	assert.Equal(t, "hi ann?", it.Locals["b"])
	assert.Equal(t, int64(55), it.Locals["f"])
	assert.Equal(t, int64(42), it.Locals["d"])
	assert.Equal(t, []Value{int64(0), int64(1), int64(4), int64(9)}, it.Locals["squares"].(*List).Items)
	assert.Equal(t, []Value{int64(0), int64(2), int64(4)}, it.Locals["evens"].(*List).Items)
	assert.Equal(t, []Value{int64(2), int64(3)}, it.Locals["mapped"].(*List).Items)
}

func TestRecursionLimit(t *testing.T) {
	err := runErr(t, `
def loop(n):
    return loop(n + 1)

loop(0)
`)
	r := AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassRuntimeError, r.Class)
	assert.Contains(t, r.Message, "recursion")
}

func TestTryExcept(t *testing.T) {
	it := run(t, `
try:
    x = 1 / 0
except ZeroDivisionError:
    x = 99

try:
    raise ValueError('boom')
except (KeyError, ValueError) as e:
    msg = str(e)

cleanup = False
try:
    y = 1
finally:
    cleanup = True

caught = False
try:
    [1][5]
except Exception:
    caught = True
`)
	assert.Equal(t, int64(99), it.Locals["x"])
	assert.Equal(t, "boom", it.Locals["msg"])
	assert.Equal(t, true, it.Locals["cleanup"])
	assert.Equal(t, true, it.Locals["caught"])
}

func TestUncaughtRaise(t *testing.T) {
	err := runErr(t, "raise RuntimeError('nope')")
	r := AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassRuntimeError, r.Class)
	assert.Equal(t, "nope", r.Message)
}

func TestBuiltins(t *testing.T) {
	it := run(t, `
n = len([1, 2, 3])
mx = max(4, 1, 9)
mn = min([5, 2, 8])
s = sum([1, 2, 3])
srt = sorted([3, 1, 2], reverse=True)
en = enumerate(['a', 'b'])
z = zip([1, 2], ['x', 'y'])
flt = list(filter(lambda v: v > 1, [1, 2, 3]))
iv = int('42')
fv = float('2.5')
sv = str(42)
ab = abs(-3)
rd = round(2.675, 2)
inst = isinstance(1, int)
binst = isinstance(True, int)
sinst = isinstance('x', (int, str))
h = hex(255)
c = chr(65)
o = ord('A')
it_obj = iter([7, 8])
nx = next(it_obj)
`)
	assert.Equal(t, int64(3), it.Locals["n"])
	assert.Equal(t, int64(9), it.Locals["mx"])
	assert.Equal(t, int64(2), it.Locals["mn"])
	assert.Equal(t, int64(6), it.Locals["s"])
	assert.Equal(t, []Value{int64(3), int64(2), int64(1)}, it.Locals["srt"].(*List).Items)
	assert.Len(t, it.Locals["en"].(*List).Items, 2)
	assert.Len(t, it.Locals["z"].(*List).Items, 2)
	assert.Equal(t, []Value{int64(2), int64(3)}, it.Locals["flt"].(*List).Items)
	assert.Equal(t, int64(42), it.Locals["iv"])
	assert.Equal(t, 2.5, it.Locals["fv"])
	assert.Equal(t, "42", it.Locals["sv"])
	assert.Equal(t, int64(3), it.Locals["ab"])
	assert.Equal(t, true, it.Locals["inst"])
	assert.Equal(t, true, it.Locals["binst"])
	assert.Equal(t, true, it.Locals["sinst"])
	assert.Equal(t, "0xff", it.Locals["h"])
	assert.Equal(t, "A", it.Locals["c"])
	assert.Equal(t, int64(65), it.Locals["o"])
	assert.Equal(t, int64(7), it.Locals["nx"])
}

func TestBlockedBuiltinsAreAbsent(t *testing.T) {
	for _, name := range []string{"eval", "exec", "compile", "open", "__import__", "input", "breakpoint"} {
		t.Run(name, func(t *testing.T) {
			it := New()
			_, ok := it.Builtins[name]
			assert.False(t, ok)
		})
	}

	err := runErr(t, "open('/etc/passwd')")
	r := AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassNameError, r.Class)
}

func TestGuardAttrPolicy(t *testing.T) {
	// Allowed introspection.
	it := run(t, "x = 'abc'.__class__.__name__")
	assert.Equal(t, "str", it.Locals["x"])

	// Underscore names outside the allow-list are violations.
	err := runErr(t, "x = ().__class__.__bases__")
	r := AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassSandboxError, r.Class)
	assert.Contains(t, r.Message, "not allowed")

	err = runErr(t, "x = [1]._private")
	r = AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassSandboxError, r.Class)

	// Blocked names raise violations even as attribute probes.
	err = runErr(t, "x = [1].eval")
	r = AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassSandboxError, r.Class)
}

func TestGuardWritePolicy(t *testing.T) {
	it := run(t, "d = {}\nd['k'] = 5\nlst = [1]\nlst[0] = 2")
	assert.Equal(t, int64(2), it.Locals["lst"].(*List).Items[0])

	err := runErr(t, "t = (1, 2)\nt[0] = 9")
	r := AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassTypeError, r.Class)

	err = runErr(t, "x = [1]\nx.foo = 2")
	r = AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassSandboxError, r.Class)
}

func TestGuardImportPolicy(t *testing.T) {
	err := runErr(t, "import os")
	r := AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassSandboxError, r.Class)
	assert.Contains(t, r.Message, "not allowed")

	err = runErr(t, "import subprocess")
	r = AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassSandboxError, r.Class)
}

func TestAllowedImports(t *testing.T) {
	allowed := []string{
		"math", "re", "json", "collections", "itertools", "functools",
		"operator", "string", "textwrap", "datetime", "decimal", "fractions",
		"statistics", "random", "copy", "pprint", "dataclasses", "typing",
		"enum", "abc",
	}
	for _, name := range allowed {
		t.Run(name, func(t *testing.T) {
			it := run(t, "import "+name)
			mod, ok := it.Locals[name].(*Module)
			require.True(t, ok)
			assert.Equal(t, name, mod.Name)
		})
	}
}

func TestModuleMath(t *testing.T) {
	it := run(t, "import math; x = math.sqrt(4); f = math.floor(2.7); p = math.pi")
	assert.Equal(t, 2.0, it.Locals["x"])
	assert.Equal(t, int64(2), it.Locals["f"])
	assert.InDelta(t, 3.14159, it.Locals["p"].(float64), 0.001)
}

func TestModuleRe(t *testing.T) {
	it := run(t, `
import re
m = re.search(r'b(c)', 'abcd')
start = m.start()
group = m.group(1)
all_hits = re.findall(r'\d+', 'a1 b22 c333')
subbed = re.sub(r'\s+', '_', 'a  b')
ci = re.search('HELLO', 'say hello', re.IGNORECASE) is not None
`)
	assert.Equal(t, int64(1), it.Locals["start"])
	assert.Equal(t, "c", it.Locals["group"])
	assert.Equal(t, []Value{"1", "22", "333"}, it.Locals["all_hits"].(*List).Items)
	assert.Equal(t, "a_b", it.Locals["subbed"])
	assert.Equal(t, true, it.Locals["ci"])
}

func TestModuleJSON(t *testing.T) {
	it := run(t, `
import json
text = json.dumps({'b': 2, 'a': [1, None, True]})
data = json.loads('{"k": [1, 2.5, "s"]}')
v = data['k'][1]
`)
	assert.Contains(t, it.Locals["text"], "\"a\"")
	assert.Equal(t, 2.5, it.Locals["v"])
}

func TestModuleAliasImports(t *testing.T) {
	it := run(t, "import math as m\nfrom math import sqrt, pi as PI\nx = m.floor(1.2)\ny = sqrt(9)")
	assert.Equal(t, int64(1), it.Locals["x"])
	assert.Equal(t, 3.0, it.Locals["y"])
	assert.NotNil(t, it.Locals["PI"])
}

func TestFromImportUnknownName(t *testing.T) {
	err := runErr(t, "from math import nonsense")
	r := AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassImportError, r.Class)
}

func TestCompileRejections(t *testing.T) {
	rejected := []string{
		"class Foo:\n    pass",
		"with ctx() as f:\n    pass",
		"def gen():\n    yield 1",
		"async def f():\n    pass",
		"global x",
		"del x",
		"assert True",
		"x = 1 +",
		"def f(*args):\n    pass",
		"from math import *",
		"@decorated\ndef f():\n    pass",
	}
	for _, src := range rejected {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			require.Error(t, err)
			_, ok := err.(*CompileError)
			assert.True(t, ok, "expected CompileError, got %T", err)
		})
	}
}

func TestCompileAccepts(t *testing.T) {
	accepted := []string{
		"",
		"# only a comment",
		"x = 1; y = 2",
		"x = (1 +\n     2)",
		"s = 'a' 'b'",
		"x = 1 \\\n+ 2",
		"t = '''multi\nline'''",
	}
	for _, src := range accepted {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			assert.NoError(t, err)
		})
	}
}

func TestPrintCollector(t *testing.T) {
	it := New()
	prog, err := Compile("print('hello', 'world')\nprint('x', 'y', sep='-', end='')")
	require.NoError(t, err)
	require.NoError(t, it.Run(prog))
	assert.Equal(t, "hello world\nx-y", it.Collector.Printed())
}

func TestLastExpressionUnderscore(t *testing.T) {
	it := run(t, "1 + 1\n'kept'")
	assert.Equal(t, "kept", it.Locals["_"])

	it = run(t, "x = 5")
	_, ok := it.Locals["_"]
	assert.False(t, ok)
}

func TestNameError(t *testing.T) {
	err := runErr(t, "x = nothing_here")
	r := AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, ClassNameError, r.Class)
	assert.Contains(t, r.Message, "nothing_here")
}

func TestAugmentedAssign(t *testing.T) {
	it := run(t, "x = 1\nx += 4\ny = [1]\ny += [2]\nd = {'n': 1}\nd['n'] += 10")
	assert.Equal(t, int64(5), it.Locals["x"])
	assert.Equal(t, []Value{int64(1), int64(2)}, it.Locals["y"].(*List).Items)
	v, _, err := it.Locals["d"].(*Dict).Get("n")
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)
}

func TestChainedAssignment(t *testing.T) {
	it := run(t, "a = b = 7")
	assert.Equal(t, int64(7), it.Locals["a"])
	assert.Equal(t, int64(7), it.Locals["b"])
}

func TestReprAndStr(t *testing.T) {
	assert.Equal(t, "'it'", Repr("it"))
	assert.Equal(t, "it", Str("it"))
	assert.Equal(t, "[1, 'a', None]", Repr(&List{Items: []Value{int64(1), "a", nil}}))
	assert.Equal(t, "(1,)", Repr(&Tuple{Items: []Value{int64(1)}}))
	assert.Equal(t, "{'k': True}", Repr(mustDict(t, "k", true)))
	assert.Equal(t, "2.0", Str(2.0))
	assert.Equal(t, "True", Str(true))
	assert.Equal(t, "None", Str(nil))
}

func mustDict(t *testing.T, k string, v Value) *Dict {
	t.Helper()
	d := NewDict()
	require.NoError(t, d.Set(k, v))
	return d
}

func TestNativeRoundTrip(t *testing.T) {
	it := run(t, "x = {'nums': [1, 2.5], 'ok': True, 'name': 'n', 'none': None}")
	native, err := ToNative(it.Locals["x"])
	require.NoError(t, err)
	m := native.(map[string]any)
	assert.Equal(t, []any{int64(1), 2.5}, m["nums"])
	assert.Equal(t, true, m["ok"])
	assert.Equal(t, "n", m["name"])
	assert.Nil(t, m["none"])

	back, err := FromNative(native)
	require.NoError(t, err)
	eq, err := Equal(back, it.Locals["x"])
	require.NoError(t, err)
	assert.True(t, eq)
}
