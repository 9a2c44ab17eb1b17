package config

import (
	"math"
	"strconv"

	"github.com/norasector/playsdr/pkg/util"
)

// SuffixedInt is a pflag.Value that accepts k, M and G suffixes.
type SuffixedInt struct {
	v *int
}

func NewSuffixedInt(v *int) *SuffixedInt {
	return &SuffixedInt{v: v}
}

func (s *SuffixedInt) String() string {
	if s.v == nil {
		return "0"
	}
	return strconv.Itoa(*s.v)
}

func (s *SuffixedInt) Set(value string) error {
	f, err := util.ParseSuffixed(value)
	if err != nil {
		return err
	}
	*s.v = int(math.Round(f))
	return nil
}

func (s *SuffixedInt) Type() string {
	return "hz"
}

// SuffixedInt64 is the 64-bit variant used for sample counts.
type SuffixedInt64 struct {
	v *int64
}

func NewSuffixedInt64(v *int64) *SuffixedInt64 {
	return &SuffixedInt64{v: v}
}

func (s *SuffixedInt64) String() string {
	if s.v == nil {
		return "0"
	}
	return strconv.FormatInt(*s.v, 10)
}

func (s *SuffixedInt64) Set(value string) error {
	f, err := util.ParseSuffixed(value)
	if err != nil {
		return err
	}
	*s.v = int64(math.Round(f))
	return nil
}

func (s *SuffixedInt64) Type() string {
	return "count"
}
