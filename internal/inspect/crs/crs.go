// Package crs identifies EPSG codes in the textual reference system
// descriptions found in vector formats.
package crs

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	authorityRe = regexp.MustCompile(`(?i)AUTHORITY\s*\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	idRe        = regexp.MustCompile(`(?i)\bID\s*\[\s*"EPSG"\s*,\s*(\d+)\s*\]`)
	codeRe      = regexp.MustCompile(`(?i)^(?:urn:ogc:def:crs:)?EPSG:(?:[\d.]*:)?(\d+)$`)
	projcsRe    = regexp.MustCompile(`(?i)^\s*PROJ(?:CS|CRS)\s*\[\s*"([^"]+)"`)
	geogcsRe    = regexp.MustCompile(`(?i)^\s*GEOG(?:CS|CRS)\s*\[\s*"([^"]+)"`)
)

// esriNames maps the names ESRI tools write into .prj files, which carry no
// AUTHORITY node, onto EPSG codes.
var esriNames = map[string]int{
	"gcs_wgs_1984":                           4326,
	"gcs_north_american_1983":                4269,
	"gcs_etrs_1989":                          4258,
	"wgs_1984_web_mercator_auxiliary_sphere": 3857,
	"wgs_1984_web_mercator":                  3857,
	"nad_1983_utm_zone_10n":                  26910,
	"nad_1983_utm_zone_11n":                  26911,
	"nad_1983_utm_zone_18n":                  26918,
	"etrs_1989_utm_zone_32n":                 25832,
	"british_national_grid":                  27700,
}

// ParseName resolves identifiers such as "EPSG:3857",
// "urn:ogc:def:crs:EPSG::3857" and "urn:ogc:def:crs:OGC:1.3:CRS84".
func ParseName(name string) (int, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}
	upper := strings.ToUpper(name)
	if strings.HasSuffix(upper, ":CRS84") || upper == "CRS84" {
		return 4326, true
	}
	if m := codeRe.FindStringSubmatch(name); m != nil {
		return atoi(m[1])
	}
	return 0, false
}

// ParseWKT finds the EPSG code of the outermost reference system in a WKT
// string. In WKT1 the outermost AUTHORITY node is the last one.
func ParseWKT(wkt string) (int, bool) {
	if matches := authorityRe.FindAllStringSubmatch(wkt, -1); len(matches) > 0 {
		return atoi(matches[len(matches)-1][1])
	}
	if matches := idRe.FindAllStringSubmatch(wkt, -1); len(matches) > 0 {
		return atoi(matches[len(matches)-1][1])
	}
	if m := projcsRe.FindStringSubmatch(wkt); m != nil {
		code, ok := esriNames[strings.ToLower(m[1])]
		return code, ok
	}
	if m := geogcsRe.FindStringSubmatch(wkt); m != nil {
		code, ok := esriNames[strings.ToLower(m[1])]
		return code, ok
	}
	return 0, false
}

func atoi(s string) (int, bool) {
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}
