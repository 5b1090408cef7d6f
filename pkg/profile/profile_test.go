package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func writeOSRelease(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "os-release")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetectResolvesArchFamily(t *testing.T) {
	path := writeOSRelease(t, `NAME="Arch Linux"
ID=arch
BUILD_ID=rolling
`)
	p, err := Detect(zerolog.Nop(), Options{
		GPU:           GPUNone,
		ComputerType:  ComputerWorkstation,
		OSReleasePath: path,
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if p.Family != FamilyArch {
		t.Errorf("Family = %s, want arch", p.Family)
	}
	if p.PackageManager != "pacman" {
		t.Errorf("PackageManager = %s, want pacman", p.PackageManager)
	}
	if p.Distro != "arch" {
		t.Errorf("Distro = %s, want arch", p.Distro)
	}
}

func TestDetectFallsBackToIDLike(t *testing.T) {
	path := writeOSRelease(t, `NAME="CachyOS"
ID=cachyos
ID_LIKE="arch"
`)
	p, err := Detect(zerolog.Nop(), Options{
		GPU:           GPUNone,
		ComputerType:  ComputerServer,
		OSReleasePath: path,
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if p.Family != FamilyArch {
		t.Errorf("Family = %s, want arch via ID_LIKE", p.Family)
	}
}

func TestDetectRejectsUnsupportedDistribution(t *testing.T) {
	path := writeOSRelease(t, `NAME="Gentoo"
ID=gentoo
`)
	_, err := Detect(zerolog.Nop(), Options{
		GPU:           GPUNone,
		ComputerType:  ComputerWorkstation,
		OSReleasePath: path,
	})
	if err == nil {
		t.Fatal("expected error for unsupported distribution")
	}
	if !strings.Contains(err.Error(), "gentoo") {
		t.Errorf("error %q should name the distribution", err)
	}
}

func TestDetectRequiresComputerType(t *testing.T) {
	path := writeOSRelease(t, "ID=fedora\n")
	if _, err := Detect(zerolog.Nop(), Options{OSReleasePath: path}); err == nil {
		t.Fatal("expected error for missing computer type")
	}
}

func TestDetectHonorsGPUOverride(t *testing.T) {
	path := writeOSRelease(t, "ID=debian\nVERSION_ID=\"12\"\n")
	p, err := Detect(zerolog.Nop(), Options{
		GPU:           GPUAMD,
		ComputerType:  ComputerWorkstation,
		OSReleasePath: path,
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if p.GPU != GPUAMD {
		t.Errorf("GPU = %s, want override amd", p.GPU)
	}
	if p.Version != "12" {
		t.Errorf("Version = %s, want 12", p.Version)
	}
}

func TestParseOSReleaseSkipsCommentsAndQuotes(t *testing.T) {
	path := writeOSRelease(t, `# generated
NAME="openSUSE Tumbleweed"
ID=opensuse-tumbleweed

malformed line without equals
VERSION_ID=20260815
`)
	fields, err := parseOSRelease(path)
	if err != nil {
		t.Fatalf("parseOSRelease: %v", err)
	}
	if fields["NAME"] != "openSUSE Tumbleweed" {
		t.Errorf("NAME = %q, quotes should be stripped", fields["NAME"])
	}
	if fields["ID"] != "opensuse-tumbleweed" {
		t.Errorf("ID = %q", fields["ID"])
	}
	if _, ok := fields["malformed line without equals"]; ok {
		t.Error("malformed line should be skipped")
	}
}

func TestClassifyGPU(t *testing.T) {
	cases := []struct {
		name  string
		lspci string
		want  GPUType
	}{
		{
			name: "nvidia wins over integrated intel",
			lspci: "00:02.0 VGA compatible controller: Intel Corporation Raptor Lake-S GT1\n" +
				"01:00.0 VGA compatible controller: NVIDIA Corporation AD104 [GeForce RTX 4070]\n",
			want: GPUNvidia,
		},
		{
			name:  "amd discrete",
			lspci: "03:00.0 VGA compatible controller: Advanced Micro Devices, Inc. [AMD/ATI] Navi 31\n",
			want:  GPUAMD,
		},
		{
			name:  "legacy ati vendor string",
			lspci: "01:00.0 VGA compatible controller: ATI Technologies Inc RV770 [Radeon HD 4870]\n",
			want:  GPUAMD,
		},
		{
			name:  "nvidia as 3d controller",
			lspci: "01:00.0 3D controller: NVIDIA Corporation GA107M [GeForce RTX 3050 Mobile]\n",
			want:  GPUNvidia,
		},
		{
			name:  "intel only",
			lspci: "00:02.0 VGA compatible controller: Intel Corporation UHD Graphics 630\n",
			want:  GPUIntel,
		},
		{
			name:  "headless host",
			lspci: "00:1f.6 Ethernet controller: Intel Corporation Ethernet Connection\n",
			want:  GPUNone,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyGPU(tc.lspci); got != tc.want {
				t.Errorf("classifyGPU = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFamilyValidate(t *testing.T) {
	for _, f := range []Family{FamilyArch, FamilyFedora, FamilyDebian, FamilySuse} {
		if err := f.Validate(); err != nil {
			t.Errorf("Validate(%s): %v", f, err)
		}
	}
	if err := Family("slackware").Validate(); err == nil {
		t.Error("expected error for unknown family")
	}
}

func TestStarlarkVarsExposeProfileFacts(t *testing.T) {
	p := Profile{
		Family:       FamilyFedora,
		Distro:       "nobara",
		GPU:          GPUNvidia,
		ComputerType: ComputerWorkstation,
		Arch:         "amd64",
	}
	vars := p.StarlarkVars()
	if vars["family"] != "fedora" || vars["gpu"] != "nvidia" {
		t.Errorf("unexpected vars: %v", vars)
	}
	if vars["computer_type"] != "workstation" || vars["distro"] != "nobara" {
		t.Errorf("unexpected vars: %v", vars)
	}
}
