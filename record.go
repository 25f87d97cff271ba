package typeface

import (
	"sort"
	"strconv"
	"strings"
)

// Glyph is one character's lowered advance width and outline command
// string, the `{ha, o}` pair of the typeface record's wire format.
type Glyph struct {
	HA int    `json:"ha"`
	O  string `json:"o"`
}

// BoundingBox is the font-wide glyph extent, in font units.
type BoundingBox struct {
	XMin int `json:"xMin"`
	YMin int `json:"yMin"`
	XMax int `json:"xMax"`
	YMax int `json:"yMax"`
}

// Meta carries glyph-conversion counters and the detected container
// format; per-glyph failures never fail the overall parse.
type Meta struct {
	ConvertedGlyphs int    `json:"convertedGlyphs"`
	ErrorGlyphs     int    `json:"errorGlyphs"`
	TotalMapped     int    `json:"totalMapped"`
	Type            string `json:"type"`
}

// TypefaceRecord is the complete decoded representation of one font:
// per-character advance + outline, font-wide metrics, kerning, and
// enough provenance to identify the source font.
type TypefaceRecord struct {
	Glyphs                  map[string]Glyph          `json:"glyphs"`
	FamilyName              string                    `json:"familyName"`
	Ascender                int                       `json:"ascender"`
	Descender               int                       `json:"descender"`
	LineGap                 int                       `json:"lineGap"`
	UnderlinePosition       int                       `json:"underlinePosition"`
	UnderlineThickness      int                       `json:"underlineThickness"`
	BoundingBox             BoundingBox               `json:"boundingBox"`
	Resolution              int                       `json:"resolution"`
	Kerning                 map[string]map[string]int `json:"kerning,omitempty"`
	OriginalFontInformation map[string]string         `json:"original_font_information"`
	Meta                    Meta                      `json:"_meta"`
}

// ParseOptions configures Parse. The zero value parses every character
// the font's cmap can resolve, at font index 0.
type ParseOptions struct {
	// FontIndex selects a font within a TrueType Collection. Ignored
	// for non-collection inputs other than rejecting a nonzero value.
	FontIndex int
	// Characters restricts the output to this exact set of characters,
	// skipping any the font's cmap cannot resolve. Empty means "every
	// character the cmap supports".
	Characters string
	// CurveSegments is not read by Parse, and nothing passes it on:
	// BuildShape takes its segment count from ShapeOptions.CurveSegments
	// (see shape.go).
	CurveSegments int
}

// Parse decodes a TrueType/OpenType/CFF/CFF2/WOFF font binary into a
// TypefaceRecord. WOFF2 inputs are rejected with ErrUnsupportedFormat;
// per-glyph failures (bad charstring, composite cycle, malformed
// contour) are recovered locally, counted in Meta.ErrorGlyphs, and
// emit an empty glyph rather than aborting the whole parse.
func Parse(data []byte, opts ParseOptions) (*TypefaceRecord, error) {
	sfnt, err := unwrapContainer(data)
	if err != nil {
		return nil, err
	}
	dir, err := parseDirectory(sfnt, opts.FontIndex)
	if err != nil {
		return nil, err
	}
	if err := dir.requireTables("head", "maxp", "hhea", "hmtx", "cmap"); err != nil {
		return nil, err
	}
	if !dir.has("glyf") && !dir.has("CFF ") && !dir.has("CFF2") {
		return nil, newError(ErrUnsupportedFormat, "font has neither glyf nor CFF/CFF2 outlines")
	}

	head, err := parseHead(dir.table("head"))
	if err != nil {
		return nil, err
	}
	maxp, err := parseMaxp(dir.table("maxp"))
	if err != nil {
		return nil, err
	}
	hhea, err := parseHhea(dir.table("hhea"))
	if err != nil {
		return nil, err
	}
	hmtx, err := parseHmtx(dir.table("hmtx"), hhea.NumHMetrics, maxp.NumGlyphs)
	if err != nil {
		return nil, err
	}
	cmap, err := parseCmap(dir.table("cmap"))
	if err != nil {
		return nil, err
	}

	var os2 *os2Table
	if dir.has("OS/2") {
		os2, err = parseOS2(dir.table("OS/2"))
		if err != nil {
			os2 = estimateOS2(hhea)
		}
	} else {
		os2 = estimateOS2(hhea)
	}
	ascender, descender, lineGap := verticalMetrics(os2, hhea)

	var post *postTable
	if dir.has("post") {
		post, _ = parsePost(dir.table("post"))
	}
	if post == nil {
		// No post table: fall back to the conventional underline
		// metrics expressed as a fraction of the em square.
		upem := int16(head.UnitsPerEm)
		post = &postTable{UnderlinePosition: -upem / 10, UnderlineThickness: upem / 20}
	}

	var name *nameTable
	if dir.has("name") {
		name, _ = parseName(dir.table("name"))
	}
	familyName := ""
	if name != nil {
		if v, ok := name.records[nameIDFontFamily]; ok {
			familyName = v
		}
	}

	var vhea *vheaTable
	var vmtx *vmtxTable
	if dir.has("vhea") {
		vhea, _ = parseVhea(dir.table("vhea"))
		if vhea != nil && dir.has("vmtx") {
			vmtx, _ = parseVmtx(dir.table("vmtx"), vhea.NumVMetrics)
		}
	}

	meta := Meta{}

	// Reverse map: rune -> glyph ID, restricted to the requested
	// character set if one was given.
	var runes []rune
	if opts.Characters != "" {
		runes = []rune(opts.Characters)
	} else {
		runes = cmap.runes()
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })

	glyphs := make(map[string]Glyph, len(runes))
	gidOf := make(map[rune]uint16, len(runes))

	isCFF := dir.has("CFF ") || dir.has("CFF2")
	fontFormat := "TrueType"
	var cffFontData *cffFont
	if isCFF {
		tag := "CFF "
		fontFormat = "CFF/OTF"
		if dir.has("CFF2") {
			tag = "CFF2"
			fontFormat = "CFF2/OTF"
		}
		cffFontData, err = parseCFFTable(dir.table(tag))
		if err != nil {
			return nil, err
		}
	}

	var glyfT *glyfTable
	var compositeCache map[uint16]*resolvedGlyph
	if !isCFF {
		if err := dir.requireTables("loca", "glyf"); err != nil {
			return nil, err
		}
		loca, err := parseLoca(dir.table("loca"), maxp.NumGlyphs, head.IndexToLocFormat != 0)
		if err != nil {
			return nil, err
		}
		glyfT = &glyfTable{data: dir.table("glyf"), loca: loca}
		compositeCache = make(map[uint16]*resolvedGlyph)
	}

	for _, r := range runes {
		gid, ok := cmap.lookup(r)
		if !ok {
			continue
		}
		gidOf[r] = gid
		meta.TotalMapped++

		var cmds []pathCommand
		advance := int(hmtx.Advance(gid))
		glyphErr := false

		if isCFF {
			cs := cffFontData.charStrings.Get(int(gid))
			if cs == nil {
				glyphErr = true
			} else {
				localSubrs, defaultWidthX, nominalWidthX := cffFontData.localSubrsFor(int(gid))
				lowered, _, err := runCharString(cs, cffFontData.globalSubrs, localSubrs, defaultWidthX, nominalWidthX, cffFontData.isCFF2, nil)
				if err != nil {
					glyphErr = true
				} else {
					cmds = lowered
				}
			}
		} else {
			resolved, err := resolveComposite(glyfT, gid, compositeCache, map[uint16]bool{})
			if err != nil {
				glyphErr = true
			} else {
				lowered, err := outlineToCommands(resolved)
				if err != nil {
					glyphErr = true
				} else {
					cmds = lowered
				}
			}
		}

		if glyphErr {
			meta.ErrorGlyphs++
			glyphs[string(r)] = Glyph{HA: advance, O: ""}
			continue
		}
		meta.ConvertedGlyphs++
		glyphs[string(r)] = Glyph{HA: advance, O: commandsToString(cmds)}
	}
	meta.Type = fontFormat

	record := &TypefaceRecord{
		Glyphs:             glyphs,
		FamilyName:         familyName,
		Ascender:           int(ascender),
		Descender:          int(descender),
		LineGap:            int(lineGap),
		UnderlinePosition:  int(post.UnderlinePosition),
		UnderlineThickness: int(post.UnderlineThickness),
		BoundingBox: BoundingBox{
			XMin: int(head.XMin), YMin: int(head.YMin),
			XMax: int(head.XMax), YMax: int(head.YMax),
		},
		Resolution:              int(head.UnitsPerEm),
		OriginalFontInformation: buildOriginalFontInformation(name, fontFormat, head, os2, vhea, vmtx),
		Meta:                    meta,
	}

	var gposTable, kernTableRaw []byte
	if dir.has("GPOS") {
		gposTable = dir.table("GPOS")
	}
	if dir.has("kern") {
		kernTableRaw = dir.table("kern")
	}
	if gposTable != nil || kernTableRaw != nil {
		pairs, err := parseKerning(gposTable, kernTableRaw)
		if err == nil && len(pairs) > 0 {
			record.Kerning = buildKerningMap(pairs, gidOf)
		}
	}

	return record, nil
}

func commandsToString(cmds []pathCommand) string {
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// buildOriginalFontInformation assembles the spec's normative
// original_font_information keys, plus this repo's supplemented raw
// metrics (unitsPerEm, win/typo ascent+descent, and vhea/vmtx
// passthrough when the font carries vertical metrics). Missing
// name-table entries are emitted as empty strings rather than
// omitted, since downstream consumers key off this object by name.
func buildOriginalFontInformation(name *nameTable, format string, head *headTable, os2 *os2Table, vhea *vheaTable, vmtx *vmtxTable) map[string]string {
	get := func(id uint16) string {
		if name == nil {
			return ""
		}
		return name.records[id]
	}
	info := map[string]string{
		"format":         format,
		"fontFamily":     get(nameIDFontFamily),
		"fontSubfamily":  get(nameIDFontSubfamily),
		"fullName":       get(nameIDFullName),
		"postScriptName": get(nameIDPostScript),
		"version":        get(nameIDVersion),
		"copyright":      get(nameIDCopyright),
		"designer":       get(nameIDDesigner),
		"unitsPerEm":     strconv.Itoa(int(head.UnitsPerEm)),
	}
	if os2 != nil && os2.present {
		info["winAscent"] = strconv.Itoa(int(os2.UsWinAscent))
		info["winDescent"] = strconv.Itoa(int(os2.UsWinDescent))
		info["typoAscender"] = strconv.Itoa(int(os2.STypoAscender))
		info["typoDescender"] = strconv.Itoa(int(os2.STypoDescender))
	}
	if vhea != nil {
		info["vertTypoAscender"] = strconv.Itoa(int(vhea.VertTypoAscender))
		info["vertTypoDescender"] = strconv.Itoa(int(vhea.VertTypoDescender))
	}
	if vmtx != nil && len(vmtx.advances) > 0 {
		info["defaultVerticalAdvance"] = strconv.Itoa(int(vmtx.advances[len(vmtx.advances)-1]))
	}
	return info
}

// buildKerningMap projects gid-keyed kerning pairs back onto the
// characters actually present in the output, dropping any pair whose
// left or right glyph has no corresponding requested character.
func buildKerningMap(pairs []kernPair, gidOf map[rune]uint16) map[string]map[string]int {
	runeOf := make(map[uint16]rune, len(gidOf))
	for r, gid := range gidOf {
		if _, exists := runeOf[gid]; !exists {
			runeOf[gid] = r
		}
	}
	out := make(map[string]map[string]int)
	for _, p := range pairs {
		lr, lok := runeOf[p.left]
		rr, rok := runeOf[p.right]
		if !lok || !rok {
			continue
		}
		key := string(lr)
		if out[key] == nil {
			out[key] = make(map[string]int)
		}
		out[key][string(rr)] = int(p.xAdvance)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
