// Package config defines the structured, typed configuration records
// spec.md §6 lists (sector_params, device_list, optimizer_params,
// system_params), loaded from YAML with case-insensitive keys and
// validated the way the original Python ConfigParser hierarchy did.
package config

import (
	"strings"

	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/plannererr"
)

// SectorParams mirrors model.SectorParams but carries the extra file-path
// fields and YAML tags a loaded config record needs (spec.md §6).
type SectorParams struct {
	AntennaBoresightGainDBi float64 `yaml:"antenna_boresight_gain"`
	MaximumTxPowerDBm       float64 `yaml:"maximum_tx_power"`
	MinimumTxPowerDBm       float64 `yaml:"minimum_tx_power"`
	NumberSectorsPerNode    int     `yaml:"number_sectors_per_node"`
	HorizontalScanRangeDeg  float64 `yaml:"horizontal_scan_range"`
	CarrierFrequencyGHz     float64 `yaml:"carrier_frequency"`
	ThermalNoisePowerDBm    float64 `yaml:"thermal_noise_power"`
	NoiseFigureDB           float64 `yaml:"noise_figure"`
	RainRatePct             float64 `yaml:"rain_rate"`
	LinkAvailabilityPct     float64 `yaml:"link_availability_percentage"`
	TxDiversityGainDB       float64 `yaml:"tx_diversity_gain"`
	RxDiversityGainDB       float64 `yaml:"rx_diversity_gain"`
	TxMiscLossDB            float64 `yaml:"tx_miscellaneous_loss"`
	RxMiscLossDB            float64 `yaml:"rx_miscellaneous_loss"`
	MinimumMCSLevel         int     `yaml:"minimum_mcs_level"`
	AntennaPatternFile      string  `yaml:"antenna_pattern_file"`
	ScanPatternFile         string  `yaml:"scan_pattern_file"`
	MCSMapFile              string  `yaml:"mcs_map_file"`
}

// DefaultSectorParams matches the original implementation's constructor
// defaults (spec.md §9 calls out parity with the original constants).
func DefaultSectorParams() SectorParams {
	return SectorParams{
		AntennaBoresightGainDBi: 30.0,
		MaximumTxPowerDBm:       16.0,
		NumberSectorsPerNode:    1,
		HorizontalScanRangeDeg:  70.0,
		CarrierFrequencyGHz:     60.0,
		ThermalNoisePowerDBm:    -81.0,
		NoiseFigureDB:           7.0,
		RainRatePct:             30.0,
		LinkAvailabilityPct:     99.9,
	}
}

// Validate checks the bounds spec.md §6 requires for sector_params.
func (p SectorParams) Validate() error {
	switch {
	case p.AntennaBoresightGainDBi < 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "antenna_boresight_gain cannot be negative", nil)
	case p.MaximumTxPowerDBm < 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "maximum_tx_power cannot be negative", nil)
	case p.NumberSectorsPerNode < 1:
		return plannererr.Config(plannererr.CodeInvalidValue, "number_sectors_per_node must be at least 1", nil)
	case p.HorizontalScanRangeDeg < 0 || p.HorizontalScanRangeDeg > 360:
		return plannererr.Config(plannererr.CodeInvalidValue, "horizontal_scan_range must be in [0, 360]", nil)
	case p.CarrierFrequencyGHz <= 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "carrier_frequency must be positive", nil)
	case p.NoiseFigureDB < 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "noise_figure cannot be negative", nil)
	case p.RainRatePct < 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "rain_rate cannot be negative", nil)
	case p.LinkAvailabilityPct < 0 || p.LinkAvailabilityPct > 100:
		return plannererr.Config(plannererr.CodeInvalidValue, "link_availability_percentage must be in [0, 100]", nil)
	case p.TxDiversityGainDB < 0 || p.RxDiversityGainDB < 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "tx/rx diversity gain cannot be negative", nil)
	case p.TxMiscLossDB < 0 || p.RxMiscLossDB < 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "tx/rx miscellaneous loss cannot be negative", nil)
	case p.MinimumMCSLevel < 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "minimum_mcs_level cannot be negative", nil)
	case p.MinimumTxPowerDBm != 0 && p.MinimumTxPowerDBm > p.MaximumTxPowerDBm:
		return plannererr.Config(plannererr.CodeInvalidValue, "minimum_tx_power must be <= maximum_tx_power", nil)
	}
	return nil
}

// ToModel converts a validated config record into the in-memory model
// type the topology package operates on.
func (p SectorParams) ToModel() model.SectorParams {
	return model.SectorParams{
		AntennaBoresightGainDBi: p.AntennaBoresightGainDBi,
		MaximumTxPowerDBm:       p.MaximumTxPowerDBm,
		MinimumTxPowerDBm:       p.MinimumTxPowerDBm,
		NumberSectorsPerNode:    p.NumberSectorsPerNode,
		HorizontalScanRangeDeg:  p.HorizontalScanRangeDeg,
		CarrierFrequencyGHz:     p.CarrierFrequencyGHz,
		ThermalNoisePowerDBm:    p.ThermalNoisePowerDBm,
		NoiseFigureDB:           p.NoiseFigureDB,
		RainRatePct:             p.RainRatePct,
		LinkAvailabilityPct:     p.LinkAvailabilityPct,
		TxDiversityGainDB:       p.TxDiversityGainDB,
		RxDiversityGainDB:       p.RxDiversityGainDB,
		TxMiscLossDB:            p.TxMiscLossDB,
		RxMiscLossDB:            p.RxMiscLossDB,
		MinimumMCSLevel:         p.MinimumMCSLevel,
	}
}

// DeviceType restricts a device record to DN or CN (spec.md §6).
type DeviceType int

const (
	DeviceTypeDN DeviceType = iota
	DeviceTypeCN
)

// ParseDeviceType accepts both the enum name and its integer value,
// honouring spec.md §6 "enum values accepted by name or by integer".
func ParseDeviceType(v any) (DeviceType, error) {
	switch val := v.(type) {
	case string:
		switch strings.ToUpper(val) {
		case "DN":
			return DeviceTypeDN, nil
		case "CN":
			return DeviceTypeCN, nil
		}
	case int:
		if val == int(DeviceTypeDN) || val == int(DeviceTypeCN) {
			return DeviceType(val), nil
		}
	}
	return DeviceTypeDN, plannererr.Config(plannererr.CodeInvalidValue, "device_type must be DN or CN", nil)
}

// Device is a device_list entry (spec.md §6).
type Device struct {
	SKU                  string       `yaml:"sku"`
	Sector               SectorParams `yaml:"sector_params"`
	NodeCapex            float64      `yaml:"node_capex"`
	NumberOfNodesPerSite int          `yaml:"number_of_nodes_per_site"`
	DeviceType           DeviceType   `yaml:"device_type"`
	AntennaPatternID     string       `yaml:"antenna_pattern_id"`
	ScanPatternID        string       `yaml:"scan_pattern_id"`
	MCSMapID             string       `yaml:"mcs_map_id"`
}

// Validate enforces the device_list invariants spec.md §6 names: CN
// devices require nodes_per_site = 1, coverage must stay within 360°.
func (d Device) Validate() error {
	if d.SKU == "" {
		return plannererr.Config(plannererr.CodeInvalidValue, "device sku cannot be empty", nil)
	}
	if d.NodeCapex < 0 {
		return plannererr.Config(plannererr.CodeInvalidValue, "node_capex cannot be negative", nil)
	}
	nodesPerSite := d.NumberOfNodesPerSite
	if nodesPerSite == 0 {
		if d.DeviceType == DeviceTypeCN {
			nodesPerSite = 1
		} else {
			nodesPerSite = 4
		}
	}
	if nodesPerSite < 1 {
		return plannererr.Config(plannererr.CodeInvalidValue, "number_of_nodes_per_site must be at least 1", nil)
	}
	if d.DeviceType == DeviceTypeCN && nodesPerSite != 1 {
		return plannererr.Config(plannererr.CodeInvalidValue, "number_of_nodes_per_site of a CN device must be 1", nil)
	}
	if err := d.Sector.Validate(); err != nil {
		return err
	}
	coverage := model.TotalHorizontalCoverageDeg(d.Sector.HorizontalScanRangeDeg, d.Sector.NumberSectorsPerNode, nodesPerSite)
	if coverage > 360 {
		return plannererr.Config(plannererr.CodeInvalidValue, "device "+d.SKU+" has radio coverage over 360 degrees", nil)
	}
	return nil
}

// ResolvedNodesPerSite applies the same CN=1/DN=4 default the original
// implementation derives when number_of_nodes_per_site is unset.
func (d Device) ResolvedNodesPerSite() int {
	if d.NumberOfNodesPerSite > 0 {
		return d.NumberOfNodesPerSite
	}
	if d.DeviceType == DeviceTypeCN {
		return 1
	}
	return 4
}

// CheckDuplicateSKUs enforces case-insensitive SKU uniqueness across a
// device_list (spec.md §7, ConfigError "duplicated device SKU").
func CheckDuplicateSKUs(devices []Device) error {
	seen := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		key := strings.ToLower(d.SKU)
		if _, exists := seen[key]; exists {
			return plannererr.Config(plannererr.CodeDuplicateSKU, "duplicated device sku: "+d.SKU, nil)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// OptimizerParams bundles every pipeline knob spec.md §6 lists under
// optimizer_params.
type OptimizerParams struct {
	Devices []Device `yaml:"device_list"`

	POPSiteCapex float64 `yaml:"pop_site_capex"`
	CNSiteCapex  float64 `yaml:"cn_site_capex"`
	DNSiteCapex  float64 `yaml:"dn_site_capex"`

	Budget          float64 `yaml:"budget"`
	POPCapacityGbps float64 `yaml:"pop_capacity"`
	Oversubscription float64 `yaml:"oversubscription"`
	DemandGbps      float64 `yaml:"demand"`

	DNDNSectorLimit   int `yaml:"dn_dn_sector_limit"`
	DNTotalSectorLimit int `yaml:"dn_total_sector_limit"`
	MaximumNumberHops int `yaml:"maximum_number_hops"`

	DiffSectorAngleLimitDeg float64 `yaml:"diff_sector_angle_limit"`
	NearFarAngleLimitDeg    float64 `yaml:"near_far_angle_limit"`
	NearFarLengthRatio      float64 `yaml:"near_far_length_ratio"`

	NumberOfChannels int `yaml:"number_of_channels"`

	// NumberOfExtraPOPs triggers the POP-proposal pass (spec.md §4.F.1,
	// §4.G step 2) when greater than zero; zero skips it entirely.
	NumberOfExtraPOPs int `yaml:"number_of_extra_pops"`

	MaximizeCommonBandwidth      bool                  `yaml:"maximize_common_bandwidth"`
	AlwaysActivePOPs             bool                  `yaml:"always_active_pops"`
	EnableLegacyRedundancyMethod bool                  `yaml:"enable_legacy_redundancy_method"`
	RedundancyLevel              model.RedundancyLevel `yaml:"redundancy_level"`
	BackhaulLinkRedundancyRatio  float64               `yaml:"backhaul_link_redundancy_ratio"`

	NumThreads int `yaml:"num_threads"`

	PopProposalRelStop    float64 `yaml:"pop_proposal_rel_stop"`
	PopProposalMaxTimeMin int     `yaml:"pop_proposal_max_time_minutes"`
	MinCostRelStop        float64 `yaml:"min_cost_rel_stop"`
	MinCostMaxTimeMin     int     `yaml:"min_cost_max_time_minutes"`
	MaxCoverageRelStop    float64 `yaml:"max_coverage_rel_stop"`
	MaxCoverageMaxTimeMin int     `yaml:"max_coverage_max_time_minutes"`
	RedundancyRelStop     float64 `yaml:"redundancy_rel_stop"`
	RedundancyMaxTimeMin  int     `yaml:"redundancy_max_time_minutes"`
	InterferenceRelStop   float64 `yaml:"interference_rel_stop"`
	InterferenceMaxTimeMin int    `yaml:"interference_max_time_minutes"`

	TopologyRouting model.RoutingMode `yaml:"topology_routing"`

	AvailabilitySimTime float64 `yaml:"availability_sim_time"`
	AvailabilitySeed    int64   `yaml:"availability_seed"`
	AvailabilityMaxTimeMin int  `yaml:"availability_max_time_minutes"`

	CandidateTopologyFilePath string `yaml:"candidate_topology_file_path"`
}

// DefaultOptimizerParams mirrors the original constructor's defaults for
// every field a caller is likely to leave unset.
func DefaultOptimizerParams() OptimizerParams {
	return OptimizerParams{
		POPSiteCapex:            1500.0,
		CNSiteCapex:             1500.0,
		DNSiteCapex:             1500.0,
		Budget:                  300000.0,
		POPCapacityGbps:         10.0,
		Oversubscription:        1.0,
		DemandGbps:              0.025,
		DNDNSectorLimit:         2,
		DNTotalSectorLimit:      15,
		MaximumNumberHops:       15,
		DiffSectorAngleLimitDeg: 25.0,
		NearFarLengthRatio:      3.0,
		NearFarAngleLimitDeg:    45.0,
		NumberOfChannels:        1,
		AlwaysActivePOPs:        true,
		EnableLegacyRedundancyMethod: true,
		RedundancyLevel:              model.RedundancyMedium,
		BackhaulLinkRedundancyRatio:  0.2,
		MinCostRelStop:          0.05,
		MinCostMaxTimeMin:       1,
		RedundancyRelStop:       0.05,
		RedundancyMaxTimeMin:    1,
		MaxCoverageRelStop:      -1,
		MaxCoverageMaxTimeMin:   1,
		InterferenceRelStop:     -1,
		InterferenceMaxTimeMin:  1,
		PopProposalRelStop:      -1,
		PopProposalMaxTimeMin:   1,
		AvailabilitySimTime:     100.0,
		AvailabilityMaxTimeMin:  1,
	}
}

// Validate enforces every bound spec.md §6 optimizer_params names.
func (o OptimizerParams) Validate() error {
	if len(o.Devices) == 0 {
		return plannererr.Config(plannererr.CodeInvalidValue, "at least 1 device needed for optimizer", nil)
	}
	if err := CheckDuplicateSKUs(o.Devices); err != nil {
		return err
	}
	for _, d := range o.Devices {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	switch {
	case o.POPSiteCapex < 0 || o.CNSiteCapex < 0 || o.DNSiteCapex < 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "POP/DN/CN capex cannot be negative", nil)
	case o.Budget < 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "budget cannot be negative", nil)
	case o.POPCapacityGbps <= 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "pop_capacity must be positive", nil)
	case o.Oversubscription < 1:
		return plannererr.Config(plannererr.CodeInvalidValue, "oversubscription must be at least 1", nil)
	case o.DemandGbps <= 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "demand must be positive", nil)
	case o.DNDNSectorLimit <= 0 || o.DNDNSectorLimit > o.DNTotalSectorLimit:
		return plannererr.Config(plannererr.CodeInvalidValue, "dn_dn_sector_limit must be positive and <= dn_total_sector_limit", nil)
	case o.MaximumNumberHops <= 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "maximum_number_hops must be positive", nil)
	case o.DiffSectorAngleLimitDeg < 0 || o.DiffSectorAngleLimitDeg > 180:
		return plannererr.Config(plannererr.CodeInvalidValue, "diff_sector_angle_limit must be in [0, 180]", nil)
	case o.NearFarLengthRatio <= 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "near_far_length_ratio must be positive", nil)
	case o.NearFarAngleLimitDeg < 0 || o.NearFarAngleLimitDeg > 180:
		return plannererr.Config(plannererr.CodeInvalidValue, "near_far_angle_limit must be in [0, 180]", nil)
	case o.NumberOfChannels < 1:
		return plannererr.Config(plannererr.CodeInvalidValue, "number_of_channels must be at least 1", nil)
	case o.BackhaulLinkRedundancyRatio < 0 || o.BackhaulLinkRedundancyRatio > 1:
		return plannererr.Config(plannererr.CodeInvalidValue, "backhaul_link_redundancy_ratio must be in [0, 1]", nil)
	case o.NumThreads < 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "num_threads cannot be negative", nil)
	case o.MinCostMaxTimeMin <= 0 || o.RedundancyMaxTimeMin <= 0 || o.InterferenceMaxTimeMin <= 0 || o.PopProposalMaxTimeMin <= 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "maximum solver time must be positive", nil)
	case o.AvailabilityMaxTimeMin <= 0:
		return plannererr.Config(plannererr.CodeInvalidValue, "maximum availability solver time must be positive", nil)
	}
	return nil
}

// LoggerLevel mirrors spec.md §6 system_params logger_level enum.
type LoggerLevel int

const (
	LoggerLevelNotSet LoggerLevel = iota
	LoggerLevelDebug
	LoggerLevelInfo
	LoggerLevelWarning
	LoggerLevelError
	LoggerLevelCritical
)

// ParseLoggerLevel accepts the level both by name and by integer (spec.md
// §6, "enum values accepted by name or by integer").
func ParseLoggerLevel(v any) (LoggerLevel, error) {
	names := map[string]LoggerLevel{
		"NOTSET":   LoggerLevelNotSet,
		"DEBUG":    LoggerLevelDebug,
		"INFO":     LoggerLevelInfo,
		"WARNING":  LoggerLevelWarning,
		"ERROR":    LoggerLevelError,
		"CRITICAL": LoggerLevelCritical,
	}
	switch val := v.(type) {
	case string:
		if lvl, ok := names[strings.ToUpper(val)]; ok {
			return lvl, nil
		}
	case int:
		if val >= int(LoggerLevelNotSet) && val <= int(LoggerLevelCritical) {
			return LoggerLevel(val), nil
		}
	}
	return LoggerLevelNotSet, plannererr.Config(plannererr.CodeInvalidValue, "logger_level must be a known name or integer", nil)
}

// SystemParams bundles runtime/IO settings (spec.md §6 system_params).
type SystemParams struct {
	OutputDir   string      `yaml:"output_dir"`
	DebugMode   bool        `yaml:"debug_mode"`
	LoggerLevel LoggerLevel `yaml:"logger_level"`
	LogFile     string      `yaml:"log_file"`
	LogToStderr bool        `yaml:"log_to_stderr"`
}

// DefaultSystemParams mirrors the original implementation's defaults.
func DefaultSystemParams() SystemParams {
	return SystemParams{
		OutputDir:   "./",
		LoggerLevel: LoggerLevelInfo,
		LogToStderr: true,
	}
}

// Root is the top-level configuration record a YAML file binds into
// (spec.md §6: "a structured record with typed fields").
type Root struct {
	Optimizer OptimizerParams `yaml:"optimizer_params"`
	System    SystemParams    `yaml:"system_params"`
}

// Validate runs every section's Validate.
func (r Root) Validate() error {
	if err := r.Optimizer.Validate(); err != nil {
		return err
	}
	return nil
}
