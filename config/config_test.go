package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/latticeforge/meshplanner/plannererr"
)

func validDevice() Device {
	return Device{
		SKU:                  "radio-1",
		Sector:               DefaultSectorParams(),
		NodeCapex:            250,
		NumberOfNodesPerSite: 4,
		DeviceType:           DeviceTypeDN,
	}
}

func TestSectorParams_ValidateRejectsOutOfRangeScanRange(t *testing.T) {
	p := DefaultSectorParams()
	p.HorizontalScanRangeDeg = 400
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error for scan range > 360")
	}
}

func TestDevice_ValidateRejectsCNWithMultipleNodes(t *testing.T) {
	d := validDevice()
	d.DeviceType = DeviceTypeCN
	d.NumberOfNodesPerSite = 2
	if err := d.Validate(); err == nil {
		t.Fatalf("expected error for CN device with nodes_per_site != 1")
	}
}

func TestDevice_ValidateRejectsExcessiveCoverage(t *testing.T) {
	d := validDevice()
	d.Sector.HorizontalScanRangeDeg = 180
	d.Sector.NumberSectorsPerNode = 3
	d.NumberOfNodesPerSite = 1
	if err := d.Validate(); err == nil {
		t.Fatalf("expected error for coverage exceeding 360 degrees")
	}
}

func TestCheckDuplicateSKUs_CaseInsensitive(t *testing.T) {
	devices := []Device{validDevice(), validDevice()}
	devices[1].SKU = "RADIO-1"
	err := CheckDuplicateSKUs(devices)
	if err == nil {
		t.Fatalf("expected duplicate sku error")
	}
	var cfgErr *plannererr.ConfigErr
	if !errors.As(err, &cfgErr) || cfgErr.Code != plannererr.CodeDuplicateSKU {
		t.Fatalf("expected CodeDuplicateSKU, got %+v", err)
	}
}

func TestOptimizerParams_ValidateRequiresDevice(t *testing.T) {
	o := DefaultOptimizerParams()
	if err := o.Validate(); err == nil {
		t.Fatalf("expected error for empty device_list")
	}
}

func TestOptimizerParams_ValidateAccepts(t *testing.T) {
	o := DefaultOptimizerParams()
	o.Devices = []Device{validDevice()}
	if err := o.Validate(); err != nil {
		t.Fatalf("expected valid optimizer params, got %v", err)
	}
}

func TestOptimizerParams_ValidateRejectsSectorLimitOrdering(t *testing.T) {
	o := DefaultOptimizerParams()
	o.Devices = []Device{validDevice()}
	o.DNDNSectorLimit = 20
	o.DNTotalSectorLimit = 15
	if err := o.Validate(); err == nil {
		t.Fatalf("expected error when dn_dn_sector_limit exceeds dn_total_sector_limit")
	}
}

func TestParseDeviceType_ByNameAndInt(t *testing.T) {
	dt, err := ParseDeviceType("cn")
	if err != nil || dt != DeviceTypeCN {
		t.Fatalf("ParseDeviceType(cn) = %v, %v", dt, err)
	}
	dt, err = ParseDeviceType(1)
	if err != nil || dt != DeviceTypeCN {
		t.Fatalf("ParseDeviceType(1) = %v, %v", dt, err)
	}
}

func TestParseLoggerLevel_ByNameAndInt(t *testing.T) {
	lvl, err := ParseLoggerLevel("warning")
	if err != nil || lvl != LoggerLevelWarning {
		t.Fatalf("ParseLoggerLevel(warning) = %v, %v", lvl, err)
	}
	lvl, err = ParseLoggerLevel(4)
	if err != nil || lvl != LoggerLevelError {
		t.Fatalf("ParseLoggerLevel(4) = %v, %v", lvl, err)
	}
}

func TestLoad_CaseInsensitiveKeysAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	yamlDoc := `
OPTIMIZER_PARAMS:
  Device_List:
    - SKU: pop-radio
      Sector_Params:
        Number_Sectors_Per_Node: 1
        Horizontal_Scan_Range: 70
        Carrier_Frequency: 60
      Node_Capex: 300
      Number_Of_Nodes_Per_Site: 4
      Device_Type: DN
  Pop_Capacity: 12.5
SYSTEM_PARAMS:
  Output_Dir: /tmp/out
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	root, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(root.Optimizer.Devices) != 1 || root.Optimizer.Devices[0].SKU != "pop-radio" {
		t.Fatalf("expected one device pop-radio, got %+v", root.Optimizer.Devices)
	}
	if root.Optimizer.POPCapacityGbps != 12.5 {
		t.Fatalf("pop_capacity = %v, want 12.5", root.Optimizer.POPCapacityGbps)
	}
	if root.System.OutputDir != "/tmp/out" {
		t.Fatalf("output_dir = %q, want /tmp/out", root.System.OutputDir)
	}
}

func TestLoad_EnumsByNameAndByInteger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	yamlDoc := `
optimizer_params:
  device_list:
    - sku: radio-1
      sector_params:
        number_sectors_per_node: 1
        horizontal_scan_range: 70
        carrier_frequency: 60
      node_capex: 300
      number_of_nodes_per_site: 1
      device_type: CN
  pop_capacity: 5
  redundancy_level: HIGH
  topology_routing: 1
system_params:
  logger_level: DEBUG
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	root, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if root.Optimizer.Devices[0].DeviceType != DeviceTypeCN {
		t.Errorf("device_type = %v, want CN", root.Optimizer.Devices[0].DeviceType)
	}
	if root.Optimizer.RedundancyLevel.String() != "HIGH" {
		t.Errorf("redundancy_level = %v, want HIGH", root.Optimizer.RedundancyLevel)
	}
	if root.Optimizer.TopologyRouting.String() != "MCS_COST_PATH" {
		t.Errorf("topology_routing = %v, want MCS_COST_PATH", root.Optimizer.TopologyRouting)
	}
	if root.System.LoggerLevel != LoggerLevelDebug {
		t.Errorf("logger_level = %v, want DEBUG", root.System.LoggerLevel)
	}
}

func TestLoad_UnknownEnumNameFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	yamlDoc := `
optimizer_params:
  device_list:
    - sku: radio-1
      sector_params:
        number_sectors_per_node: 1
        horizontal_scan_range: 70
        carrier_frequency: 60
      node_capex: 300
      number_of_nodes_per_site: 4
      device_type: BOGUS
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown device_type")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/scenario.yaml")
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
	var ioErr *plannererr.IOErr
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOErr, got %+v", err)
	}
}
