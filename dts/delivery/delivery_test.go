package delivery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/fserrors"
	"github.com/dts-project/dts/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetPathRules(t *testing.T) {
	rec := &control.Record{Filename: "raw.fits", DeliveryName: "obs001.fits"}

	assert.Equal(t, filepath.Join("/dest", "raw.fits"), TargetPath("/dest", "$F", rec))
	assert.Equal(t, filepath.Join("/dest", "obs001.fits"), TargetPath("/dest", "$D", rec))
	assert.Equal(t, filepath.Join("/dest", "literal.dat"), TargetPath("/dest", "literal.dat", rec))
	assert.Equal(t, filepath.Join("/dest", "obs001.fits"), TargetPath("/dest", "", rec))

	rec2 := &control.Record{Filename: "raw.fits"}
	assert.Equal(t, filepath.Join("/dest", "raw.fits"), TargetPath("/dest", "", rec2))
}

func TestPrepareDirCreatesAndProbes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dest")
	require.NoError(t, PrepareDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	_, err = os.Stat(filepath.Join(dir, ".test"))
	assert.True(t, os.IsNotExist(err))
}

func TestCopyToTargetFile(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	src := filepath.Join(srcDir, "a.dat")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	dst := filepath.Join(dstDir, "a.dat")
	require.NoError(t, CopyToTarget(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestCopyToTargetDirectoryRecursive(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "sub", "f.txt"), []byte("x"), 0o644))

	dstDir := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyToTarget(srcDir, dstDir))

	got, err := os.ReadFile(filepath.Join(dstDir, "sub", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestApplyParFileFoldsParamsAndDeliveryNameOverride(t *testing.T) {
	dir := t.TempDir()
	parPath := filepath.Join(dir, "sci.par")
	require.NoError(t, os.WriteFile(parPath, []byte("account obs42\ndeliveryName renamed.fits\n"), 0o644))

	rec := &control.Record{DeliveryName: "orig.fits"}
	require.NoError(t, ApplyParFile(dir, "sci", rec))

	v, ok := rec.Get("account")
	require.True(t, ok)
	assert.Equal(t, "obs42", v)
	assert.Equal(t, "renamed.fits", rec.DeliveryName)

	_, err := os.Stat(parPath)
	assert.True(t, os.IsNotExist(err))
}

func TestApplyParFileMissingIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	rec := &control.Record{}
	assert.NoError(t, ApplyParFile(dir, "sci", rec))
}

func TestSubstituteTokens(t *testing.T) {
	rec := &control.Record{Filename: "raw.dat", MD5: "abc123", FSize: 42, QueueHost: "origin.example"}
	got := substitute("echo $F $MD5 $S $OH -> $D", "/dest/raw.dat", rec)
	assert.Equal(t, "echo raw.dat abc123 42 origin.example -> /dest/raw.dat", got)
}

func TestSplitRedirection(t *testing.T) {
	argv, r := splitRedirection([]string{"cmd", "arg1", ">", "/tmp/out", "<", "/tmp/in"})
	assert.Equal(t, []string{"cmd", "arg1"}, argv)
	assert.Equal(t, "/tmp/out", r.stdoutPath)
	assert.Equal(t, "/tmp/in", r.stdinPath)
	assert.False(t, r.appendOut)
}

func TestRunCommandNullDeletesAndReportsOK(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "delivered.dat")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	cfg := Config{QueueName: "sci", DeliveryDir: dir, DeliveryCmd: NullCommand, DeliverAs: "delivered.dat"}
	rec := &control.Record{Filename: "delivered.dat"}

	srcSpool := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcSpool, "delivered.dat"), []byte("x"), 0o644))

	res := Deliver(cfg, srcSpool, rec)
	assert.Equal(t, fserrors.DeliveryOK, res.Status)
	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))
	require.Len(t, rec.History, 1)
	assert.True(t, rec.History[0].OK)
}

func TestRunCommandExitStatusClassification(t *testing.T) {
	dir := t.TempDir()
	rec := &control.Record{Filename: "f.dat", FSize: 1}
	code, err := RunCommand("false", dir, filepath.Join(dir, "f.dat"), rec)
	require.NoError(t, err)
	assert.Equal(t, fserrors.DeliveryMinor, fserrors.ClassifyExitCode(code))
}

func TestResolveCollisionNumberPolicyAvoidsOverwrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "f.dat")
	require.NoError(t, os.WriteFile(target, []byte("existing"), 0o644))
	require.NoError(t, os.WriteFile(target+".1", []byte("existing"), 0o644))

	rec := &control.Record{Filename: "f.dat"}
	got := resolveCollision(queue.DeliveryNumber, dir, target, rec)
	assert.Equal(t, target+".2", got)
}

func TestResolveCollisionOriginalPolicyIgnoresDeliverAs(t *testing.T) {
	rec := &control.Record{Filename: "spooled.dat", DeliveryName: "renamed.dat"}
	target := TargetPath("/dest", "$D", rec)
	got := resolveCollision(queue.DeliveryOriginal, "/dest", target, rec)
	assert.Equal(t, filepath.Join("/dest", "spooled.dat"), got)
}

func TestDeliverAppliesNumberPolicy(t *testing.T) {
	spoolDir := t.TempDir()
	destDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(spoolDir, "f.dat"), []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "f.dat"), []byte("old"), 0o644))

	cfg := Config{QueueName: "sci", DeliveryDir: destDir, DeliverAs: "$F", Policy: queue.DeliveryNumber}
	rec := &control.Record{Filename: "f.dat"}

	res := Deliver(cfg, spoolDir, rec)
	assert.Equal(t, fserrors.DeliveryOK, res.Status)
	assert.Equal(t, filepath.Join(destDir, "f.dat.1"), res.TargetPath)

	old, err := os.ReadFile(filepath.Join(destDir, "f.dat"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestDeliverWithoutCommandSucceeds(t *testing.T) {
	spoolDir := t.TempDir()
	destDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(spoolDir, "f.dat"), []byte("data"), 0o644))

	cfg := Config{QueueName: "sci", DeliveryDir: destDir, DeliverAs: "$F"}
	rec := &control.Record{Filename: "f.dat"}

	res := Deliver(cfg, spoolDir, rec)
	assert.Equal(t, fserrors.DeliveryOK, res.Status)
	got, err := os.ReadFile(filepath.Join(destDir, "f.dat"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}
