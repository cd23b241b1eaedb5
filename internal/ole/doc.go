// Package ole extracts images from the OLE object fields Microsoft Access
// uses to store pictures.
//
// An Access OLE field usually looks like:
//
//	Access header   signature 0x1C15, header size, object type,
//	                name and class strings
//	OLE1 stream     version 0x0501, format id 2 (embedded),
//	                class / topic / item names, native data
//	native data     a BMP file for "PBrush", a packaged file for "Package",
//	                or an OLE2 compound document for newer servers
//
// UnwrapImage peels these layers and falls back to scanning for a known
// image signature (BMP, JPEG, PNG, GIF, TIFF) when a layer is missing or
// unfamiliar. Fields that already hold a plain image file are returned
// unchanged.
package ole
