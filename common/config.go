/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package common

import (
	"flag"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v2"
	"k8s.io/apimachinery/pkg/api/resource"
)

type ShardFsCmdlineArgs struct {
	// per-process knobs. use ShardFsConfig (generated from ConfigFile) for
	// static configuration shared among cluster nodes.
	ServerId   uint
	ListenIp   string
	ApiPort    int
	RootDir    string
	LogFile    string
	ConfigFile string
	ClientMode bool
}

func (c *ShardFsCmdlineArgs) SetCmdArgs() {
	flag.UintVar(&c.ServerId, "serverId", 1, "Identity number for this node")
	flag.StringVar(&c.ListenIp, "listenIp", "0.0.0.0", "listened Ip")
	flag.IntVar(&c.ApiPort, "apiPort", 8638, "communication port")
	flag.StringVar(&c.RootDir, "rootDir", "/var/lib/shardfs/8638", "directory to store local data")
	flag.StringVar(&c.LogFile, "logFile", "", "log file path for debug (blank means stderr, default: blank)")
	flag.StringVar(&c.ConfigFile, "configFile", "", "yaml file for ShardFsConfig")
	flag.BoolVar(&c.ClientMode, "clientMode", false, "client mode")
}

func (c *ShardFsCmdlineArgs) GetShardFsConfig() ShardFsConfig {
	return NewConfig(c.ConfigFile)
}

type ShardFsConfig struct {
	DirMode  uint32 `yaml:"dirMode"`
	FileMode uint32 `yaml:"fileMode"`
	Uid      uint32 `yaml:"uid"`
	Gid      uint32 `yaml:"gid"`

	MaxRetry     int    `yaml:"maxRetry"`
	Partitions   int    `yaml:"partitions"`
	StoreBackend string `yaml:"storeBackend"`

	DentryCacheCount int    `yaml:"dentryCacheCount"`
	DentryCacheSize  string `yaml:"dentryCacheSize"`
	InodeCacheCount  int    `yaml:"inodeCacheCount"`

	DentryCacheSizeBytes int64 `yaml:"-"`

	DebugMeta bool `yaml:"debugMeta"`

	ShutdownTimeout string `yaml:"shutdownTimeout"`

	ShutdownTimeoutDuration time.Duration `yaml:"-"`
}

func setDefaultString(str *string, defaultStr string) {
	if str == nil || *str == "" {
		*str = defaultStr
	}
}

func NewConfig(yamlFile string) (c ShardFsConfig) {
	var buf []byte = nil
	if yamlFile != "" {
		f, err := os.Open(yamlFile)
		if err != nil {
			log.Fatalf("Failed: NewConfig, yamlFile=%v, err=%v", yamlFile, err)
		}
		b, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			log.Fatalf("Failed: NewConfig, ReadAll, err=%v", err)
		}
		buf = b
	}
	var err error
	c, err = NewConfigFromByteArray(buf)
	if err != nil {
		log.Fatalf("Failed: NewConfig, NewConfigFromByteArray, err=%v", err)
	}
	return
}

func NewConfigFromByteArray(buf []byte) (c ShardFsConfig, err error) {
	if buf != nil {
		if err = yaml.UnmarshalStrict(buf, &c); err != nil {
			log.Printf("Failed: NewConfig, UnmarshalStrict, err=%v", err)
			return
		}
	}

	if c.DirMode == 0 {
		c.DirMode = 0755
	}
	if c.FileMode == 0 {
		c.FileMode = 0644
	}
	if c.Uid == 0 {
		c.Uid = uint32(os.Getuid())
	}
	if c.Gid == 0 {
		c.Gid = uint32(os.Getgid())
	}

	if c.MaxRetry <= 0 {
		c.MaxRetry = 100
	}
	if c.Partitions <= 0 {
		c.Partitions = 16
	}
	setDefaultString(&c.StoreBackend, "memory")

	if c.DentryCacheCount <= 0 {
		c.DentryCacheCount = 1024 * 1024
	}
	setDefaultString(&c.DentryCacheSize, "64Mi")
	var dentryCacheSize resource.Quantity
	if dentryCacheSize, err = resource.ParseQuantity(c.DentryCacheSize); err != nil {
		log.Printf("Failed: NewConfig, ParseQuantity, DentryCacheSize=%v, err=%v", c.DentryCacheSize, err)
		return
	}
	c.DentryCacheSizeBytes = dentryCacheSize.Value()
	if c.InodeCacheCount <= 0 {
		c.InodeCacheCount = 1024 * 1024
	}

	setDefaultString(&c.ShutdownTimeout, "10m")
	if c.ShutdownTimeoutDuration, err = time.ParseDuration(c.ShutdownTimeout); err != nil {
		log.Printf("Failed: NewConfig, ParseDuration, ShutdownTimeout=%v, err=%v", c.ShutdownTimeout, err)
		return
	}
	return
}
