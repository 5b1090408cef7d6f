package registry

import (
	"time"

	"github.com/rigup/rigup/pkg/profile"
)

// dockerDaemonConfig is written to /etc/docker/daemon.json. The probe
// compares live content against it, so formatting matters.
const dockerDaemonConfig = `{
  "log-driver": "json-file",
  "log-opts": {
    "max-size": "10m",
    "max-file": "3"
  }
}
`

// BuiltinCapabilities returns the compiled-in capability table in
// declaration order. Declaration order breaks topological ties in plans.
func BuiltinCapabilities() []Capability {
	return []Capability{
		{
			ID:    "base-packages",
			Label: "Base development packages",
			Checks: []Check{
				{Kind: CheckCommand, Command: "git"},
				{Kind: CheckCommand, Command: "curl"},
			},
			Actions: []Action{
				{Kind: ActionPackages, Packages: map[profile.Family][]string{
					profile.FamilyArch:   {"git", "curl", "base-devel", "unzip"},
					profile.FamilyFedora: {"git", "curl", "gcc", "make", "unzip"},
					profile.FamilyDebian: {"git", "curl", "build-essential", "unzip"},
					profile.FamilySuse:   {"git", "curl", "gcc", "make", "unzip"},
				}},
			},
		},
		{
			ID:    "python-runtime",
			Label: "Python runtime",
			Checks: []Check{
				{Kind: CheckCommand, Command: "python3"},
				{Kind: CheckCommand, Command: "pip3"},
			},
			Actions: []Action{
				{Kind: ActionPackages, Packages: map[profile.Family][]string{
					profile.FamilyArch:   {"python", "python-pip"},
					profile.FamilyFedora: {"python3", "python3-pip"},
					profile.FamilyDebian: {"python3", "python3-pip"},
					profile.FamilySuse:   {"python3", "python3-pip"},
				}},
			},
		},
		{
			ID:    "gpu-driver",
			Label: "NVIDIA GPU driver",
			When:  `gpu == "nvidia"`,
			Checks: []Check{
				{Kind: CheckCommand, Command: "nvidia-smi"},
			},
			Actions: []Action{
				{Kind: ActionPackages, Packages: map[profile.Family][]string{
					profile.FamilyArch:   {"nvidia", "nvidia-utils"},
					profile.FamilyFedora: {"akmod-nvidia", "xorg-x11-drv-nvidia-cuda"},
					profile.FamilyDebian: {"nvidia-driver"},
					profile.FamilySuse:   {"nvidia-video-G06"},
				}},
			},
			Hint: "reboot for the kernel module to load",
		},
		{
			ID:    "amd-gpu-driver",
			Label: "AMD GPU driver stack",
			When:  `gpu == "amd"`,
			Checks: []Check{
				{Kind: CheckCommand, Command: "vulkaninfo"},
			},
			Actions: []Action{
				{Kind: ActionPackages, Packages: map[profile.Family][]string{
					profile.FamilyArch:   {"mesa", "vulkan-radeon", "libva-mesa-driver", "vulkan-tools"},
					profile.FamilyFedora: {"mesa-vulkan-drivers", "mesa-va-drivers", "vulkan-tools"},
					profile.FamilyDebian: {"mesa-vulkan-drivers", "mesa-va-drivers", "vulkan-tools"},
					profile.FamilySuse:   {"Mesa", "libvulkan_radeon", "vulkan-tools"},
				}},
			},
		},
		{
			ID:    "intel-gpu-driver",
			Label: "Intel GPU driver stack",
			When:  `gpu == "intel"`,
			Checks: []Check{
				{Kind: CheckCommand, Command: "vulkaninfo"},
			},
			Actions: []Action{
				{Kind: ActionPackages, Packages: map[profile.Family][]string{
					profile.FamilyArch:   {"mesa", "vulkan-intel", "intel-media-driver", "vulkan-tools"},
					profile.FamilyFedora: {"mesa-vulkan-drivers", "intel-media-driver", "vulkan-tools"},
					profile.FamilyDebian: {"mesa-vulkan-drivers", "intel-media-va-driver", "vulkan-tools"},
					profile.FamilySuse:   {"Mesa", "libvulkan_intel", "intel-media-driver", "vulkan-tools"},
				}},
			},
		},
		{
			ID:        "container-engine",
			Label:     "Docker container engine",
			DependsOn: []string{"base-packages"},
			Checks: []Check{
				{Kind: CheckCommand, Command: "docker"},
				{Kind: CheckUnitActive, Unit: "docker.service"},
				{Kind: CheckUnitEnabled, Unit: "docker.service"},
				{Kind: CheckGroupMember, Group: "docker"},
				{Kind: CheckFileContains, Path: "/etc/docker/daemon.json", Content: `"log-driver": "json-file"`},
			},
			Actions: []Action{
				{Kind: ActionPackages, Packages: map[profile.Family][]string{
					profile.FamilyArch:   {"docker", "docker-compose"},
					profile.FamilyFedora: {"docker", "docker-compose"},
					profile.FamilyDebian: {"docker.io", "docker-compose"},
					profile.FamilySuse:   {"docker", "docker-compose"},
				}},
				{Kind: ActionFileWrite, Path: "/etc/docker/daemon.json", Content: dockerDaemonConfig, Mode: 0o644},
				{Kind: ActionUnitEnable, Unit: "docker.service"},
				{Kind: ActionGroupAdd, Group: "docker"},
			},
			Hint: "log out and back in for the docker group change to take effect",
		},
		{
			ID:        "nvidia-container-toolkit",
			Label:     "NVIDIA container toolkit",
			When:      `gpu == "nvidia"`,
			DependsOn: []string{"gpu-driver", "container-engine"},
			Checks: []Check{
				{Kind: CheckCommand, Command: "nvidia-ctk"},
			},
			Actions: []Action{
				{Kind: ActionPackages, Packages: map[profile.Family][]string{
					profile.FamilyArch:   {"nvidia-container-toolkit"},
					profile.FamilyFedora: {"nvidia-container-toolkit"},
					profile.FamilyDebian: {"nvidia-container-toolkit"},
					profile.FamilySuse:   {"nvidia-container-toolkit"},
				}},
				{Kind: ActionCommand, Command: map[profile.Family][]string{
					"": {"nvidia-ctk", "runtime", "configure", "--runtime=docker"},
				}},
			},
		},
		{
			ID:             "tailscale-vpn",
			Label:          "Tailscale VPN",
			RequiresSecret: "RIGUP_TAILSCALE_AUTHKEY",
			Checks: []Check{
				{Kind: CheckCommand, Command: "tailscale"},
				{Kind: CheckUnitActive, Unit: "tailscaled.service"},
			},
			Actions: []Action{
				{Kind: ActionPackages, Packages: map[profile.Family][]string{
					profile.FamilyArch:   {"tailscale"},
					profile.FamilyFedora: {"tailscale"},
					profile.FamilyDebian: {"tailscale"},
					profile.FamilySuse:   {"tailscale"},
				}},
				{Kind: ActionUnitEnable, Unit: "tailscaled.service"},
				{Kind: ActionCommand, Command: map[profile.Family][]string{
					"": {"tailscale", "up", "--auth-key=env:RIGUP_TAILSCALE_AUTHKEY"},
				}},
			},
		},
		{
			ID:    "flatpak-support",
			Label: "Flatpak application support",
			When:  `computer_type == "workstation"`,
			Checks: []Check{
				{Kind: CheckCommand, Command: "flatpak"},
				{Kind: CheckFileExists, Path: "/var/lib/flatpak/repo"},
			},
			Actions: []Action{
				{Kind: ActionPackages, Packages: map[profile.Family][]string{
					profile.FamilyArch:   {"flatpak"},
					profile.FamilyFedora: {"flatpak"},
					profile.FamilyDebian: {"flatpak"},
					profile.FamilySuse:   {"flatpak"},
				}},
				{Kind: ActionCommand, Command: map[profile.Family][]string{
					"": {"flatpak", "remote-add", "--if-not-exists", "flathub",
						"https://dl.flathub.org/repo/flathub.flatpakrepo"},
				}},
			},
		},
		{
			ID:        "desktop-apps",
			Label:     "Desktop applications",
			When:      `computer_type == "workstation"`,
			DependsOn: []string{"flatpak-support"},
			Checks: []Check{
				{Kind: CheckFileExists, Path: "/var/lib/flatpak/app/com.brave.Browser"},
			},
			Actions: []Action{
				{Kind: ActionCommand, Command: map[profile.Family][]string{
					"": {"flatpak", "install", "-y", "flathub",
						"com.brave.Browser", "md.obsidian.Obsidian", "com.discordapp.Discord"},
				}},
			},
		},
		{
			ID:        "proton-compat",
			Label:     "Proton-GE compatibility layer",
			When:      `computer_type == "workstation"`,
			DependsOn: []string{"base-packages"},
			Checks: []Check{
				{Kind: CheckFileExists, Path: "~/.steam/root/compatibilitytools.d"},
			},
			Actions: []Action{
				{Kind: ActionDownload,
					Release: &ReleaseSource{
						Repo:        "GloriousEggroll/proton-ge-custom",
						AssetSuffix: ".tar.gz",
					},
					Dest: "~/.steam/root/compatibilitytools.d",
				},
			},
		},
		{
			ID:        "wine-prefix",
			Label:     "Shared Wine prefix",
			When:      `computer_type == "workstation"`,
			DependsOn: []string{"proton-compat"},
			DataDir:   "prefixes/shared",
			Checks: []Check{
				// Canonical layout: prefix contents live under pfx/, the
				// layout Proton itself creates.
				{Kind: CheckMarker, Marker: "pfx/system.reg"},
			},
			Actions: []Action{
				{Kind: ActionPackages, Packages: map[profile.Family][]string{
					profile.FamilyArch:   {"wine", "winetricks"},
					profile.FamilyFedora: {"wine", "winetricks"},
					profile.FamilyDebian: {"wine", "winetricks"},
					profile.FamilySuse:   {"wine", "winetricks"},
				}},
				{Kind: ActionPrefixInit},
			},
		},
		{
			ID:          "battlenet-client",
			Label:       "Battle.net client",
			When:        `computer_type == "workstation"`,
			DependsOn:   []string{"wine-prefix"},
			Interactive: true,
			DataDir:     "prefixes/battlenet",
			Checks: []Check{
				{Kind: CheckMarker, Marker: "pfx/drive_c/Program Files (x86)/Battle.net/Battle.net.exe"},
			},
			Actions: []Action{
				{Kind: ActionPrefixInit},
				{Kind: ActionGUILaunch,
					Installer:   "https://downloader.battle.net/download/getInstaller?os=win&installer=Battle.net-Setup.exe",
					SettleDelay: 15 * time.Second,
				},
			},
			Hint: "complete the Battle.net installer window, then re-run rigup status",
		},
		{
			ID:          "ea-client",
			Label:       "EA App client",
			When:        `computer_type == "workstation"`,
			DependsOn:   []string{"wine-prefix"},
			Interactive: true,
			DataDir:     "prefixes/ea",
			Checks: []Check{
				{Kind: CheckMarker, Marker: "pfx/drive_c/Program Files/Electronic Arts/EA Desktop/EA Desktop/EADesktop.exe"},
			},
			Actions: []Action{
				{Kind: ActionPrefixInit},
				{Kind: ActionGUILaunch,
					Installer:   "https://origin-a.akamaihd.net/EA-Desktop-Client-Download/installer-releases/EAappInstaller.exe",
					SettleDelay: 15 * time.Second,
				},
			},
			Hint: "complete the EA App installer window, then re-run rigup status",
		},
		{
			ID:          "epic-client",
			Label:       "Epic Games client",
			When:        `computer_type == "workstation"`,
			DependsOn:   []string{"wine-prefix"},
			Interactive: true,
			DataDir:     "prefixes/epic",
			Checks: []Check{
				{Kind: CheckMarker, Marker: "pfx/drive_c/Program Files (x86)/Epic Games/Launcher/Portal/Binaries/Win32/EpicGamesLauncher.exe"},
			},
			Actions: []Action{
				{Kind: ActionPrefixInit},
				{Kind: ActionGUILaunch,
					Installer:   "https://launcher-public-service-prod06.ol.epicgames.com/launcher/api/installer/download/EpicGamesLauncherInstaller.msi",
					SettleDelay: 15 * time.Second,
				},
			},
			Hint: "complete the Epic Games installer window, then re-run rigup status",
		},
	}
}
