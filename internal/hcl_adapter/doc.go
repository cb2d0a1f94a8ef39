// Package hcl_adapter is the HCL implementation of config.Loader.
//
// A configuration directory may hold any number of .hcl files, each with any
// of these top-level blocks:
//
//	settings {
//	  workflow_type = "auto"
//	  work_dir      = env("FMRIFLOW_WORK", "/tmp/work")
//	}
//
//	budget {
//	  threads   = 8
//	  memory_mb = 16384
//	}
//
//	tool "func_hmc" {
//	  path = "/opt/fsl/bin/mcflirt"
//	  args = ["-in", "{bold}", "-out", "{out}/bold_mcf", "-plots"]
//	}
//
//	sub_report "functional" {
//	  title = "Functional"
//	  element "epi_mask" {
//	    file_pattern = "func/.*_bold_mask"
//	  }
//	}
package hcl_adapter
