package config

type VFSConfig struct {
	// RootMode holds the permission bits of "/" and "/dev".
	RootMode       uint32   `yaml:"root_mode" env-default:"493"`
	MaxDirEntries  int      `yaml:"max_dir_entries" env:"VFS_MAX_DIR_ENTRIES" env-default:"0"`
	// MaxFileSize bounds regular files, in bytes.
	MaxFileSize    int64    `yaml:"max_file_size" env:"VFS_MAX_FILE_SIZE" env-default:"67108864"`
	FDTableSize    int      `yaml:"fd_table_size" env-default:"256"`
	VnodeTableSize int      `yaml:"vnode_table_size" env-default:"1024"`
	Devices        []string `yaml:"devices" env-default:"null,zero,full"`
}
