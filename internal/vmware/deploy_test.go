package vmware

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/vim25/types"
)

// writeOVA writes a tar archive with the given entries in order
func writeOVA(t *testing.T, entries map[string][]byte, order []string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "appliance.ova")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	w := tar.NewWriter(f)
	for _, name := range order {
		content := entries[name]
		require.NoError(t, w.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}))
		_, err := w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestReadOVADescriptor(t *testing.T) {
	t.Parallel()

	descriptor := `<?xml version="1.0"?><Envelope/>`
	path := writeOVA(t, map[string][]byte{
		"appliance-disk1.vmdk": []byte("disk-bytes"),
		"appliance.ovf":        []byte(descriptor),
	}, []string{"appliance-disk1.vmdk", "appliance.ovf"})

	got, err := readOVADescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, descriptor, got)
}

func TestReadOVADescriptorUppercaseExtension(t *testing.T) {
	t.Parallel()

	path := writeOVA(t, map[string][]byte{
		"APPLIANCE.OVF": []byte("descriptor"),
	}, []string{"APPLIANCE.OVF"})

	got, err := readOVADescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, "descriptor", got)
}

func TestReadOVADescriptorMissing(t *testing.T) {
	t.Parallel()

	path := writeOVA(t, map[string][]byte{
		"appliance-disk1.vmdk": []byte("disk-bytes"),
	}, []string{"appliance-disk1.vmdk"})

	_, err := readOVADescriptor(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no OVF descriptor")
}

func TestOpenOVAEntry(t *testing.T) {
	t.Parallel()

	path := writeOVA(t, map[string][]byte{
		"appliance.ovf":        []byte("descriptor"),
		"appliance-disk1.vmdk": []byte("disk-bytes"),
	}, []string{"appliance.ovf", "appliance-disk1.vmdk"})

	// Descriptors reference disks by base name; the archive entry may
	// carry a directory prefix.
	reader, size, err := openOVAEntry(path, "nested/appliance-disk1.vmdk")
	require.NoError(t, err)
	defer func() { require.NoError(t, reader.Close()) }()

	assert.Equal(t, int64(len("disk-bytes")), size)

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "disk-bytes", string(content))
}

func TestOpenOVAEntryMissing(t *testing.T) {
	t.Parallel()

	path := writeOVA(t, map[string][]byte{
		"appliance.ovf": []byte("descriptor"),
	}, []string{"appliance.ovf"})

	_, _, err := openOVAEntry(path, "appliance-disk1.vmdk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestImportedEntityName(t *testing.T) {
	t.Parallel()

	vmSpec := &types.VirtualMachineImportSpec{
		ConfigSpec: types.VirtualMachineConfigSpec{Name: "descriptor-name"},
	}

	tests := []struct {
		name      string
		requested string
		spec      types.BaseImportSpec
		want      string
	}{
		{name: "requested name wins", requested: "web-01", spec: vmSpec, want: "web-01"},
		{name: "falls back to the descriptor name", requested: "", spec: vmSpec, want: "descriptor-name"},
		{name: "nil spec yields empty", requested: "", spec: nil, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, importedEntityName(tc.requested, tc.spec))
		})
	}
}
